package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/timmy/callinsight/internal/domain"
	"github.com/timmy/callinsight/internal/transcription"
)

// Segmentation strategy names.
const (
	SegmentationSingle      = "single"
	SegmentationAlternating = "alternating"
	SegmentationDiarized    = "diarized"
)

// SegmentationStrategy splits a completed job's transcript into speaker turns.
type SegmentationStrategy interface {
	Name() string
	// Segment returns at least one segment, or transcription.ErrEmptyTranscript.
	Segment(job *domain.TranscriptionJob) ([]domain.TranscriptSegment, error)
}

// NewSegmentationStrategy returns the named strategy. speakers applies to
// alternating segmentation.
func NewSegmentationStrategy(name string, speakers int) (SegmentationStrategy, error) {
	switch name {
	case "", SegmentationSingle:
		return SingleSpeaker{}, nil
	case SegmentationAlternating:
		return Alternating{Speakers: speakers}, nil
	case SegmentationDiarized:
		return Diarized{Fallback: SingleSpeaker{}}, nil
	default:
		return nil, fmt.Errorf("unknown segmentation strategy %q", name)
	}
}

func speakerRole(i int) string {
	return "speaker_" + strconv.Itoa(i+1)
}

// SingleSpeaker attributes the whole transcript to speaker_1.
type SingleSpeaker struct{}

func (SingleSpeaker) Name() string { return SegmentationSingle }

func (SingleSpeaker) Segment(job *domain.TranscriptionJob) ([]domain.TranscriptSegment, error) {
	text := strings.TrimSpace(job.TranscriptText)
	if text == "" {
		return nil, transcription.ErrEmptyTranscript
	}
	return []domain.TranscriptSegment{{Speaker: speakerRole(0), Text: text, Confidence: 1.0}}, nil
}

// Alternating splits on turn markers (em dash, en dash, line break) and
// assigns roles round-robin across Speakers (default 2).
type Alternating struct {
	Speakers int
}

func (Alternating) Name() string { return SegmentationAlternating }

var turnMarkers = strings.NewReplacer("—", "\n", "–", "\n", "\r\n", "\n")

func (a Alternating) Segment(job *domain.TranscriptionJob) ([]domain.TranscriptSegment, error) {
	n := a.Speakers
	if n <= 0 {
		n = 2
	}

	var out []domain.TranscriptSegment
	for _, turn := range strings.Split(turnMarkers.Replace(job.TranscriptText), "\n") {
		turn = strings.TrimSpace(turn)
		if turn == "" {
			continue
		}
		out = append(out, domain.TranscriptSegment{
			Speaker:    speakerRole(len(out) % n),
			Text:       turn,
			Confidence: 1.0,
		})
	}
	if len(out) == 0 {
		return nil, transcription.ErrEmptyTranscript
	}
	return out, nil
}

// Diarized uses the provider's speaker segments and falls back when the job
// carries none.
type Diarized struct {
	Fallback SegmentationStrategy
}

func (Diarized) Name() string { return SegmentationDiarized }

func (d Diarized) Segment(job *domain.TranscriptionJob) ([]domain.TranscriptSegment, error) {
	var out []domain.TranscriptSegment
	for _, seg := range job.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		speaker := seg.Speaker
		if speaker == "" {
			speaker = speakerRole(0)
		}
		seg.Speaker = speaker
		seg.Text = text
		seg.Confidence = float64(domain.Confidence(seg.Confidence).Clamp())
		out = append(out, seg)
	}
	if len(out) > 0 {
		return out, nil
	}

	fallback := d.Fallback
	if fallback == nil {
		fallback = SingleSpeaker{}
	}
	return fallback.Segment(job)
}
