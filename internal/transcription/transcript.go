package transcription

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/timmy/callinsight/internal/domain"
)

// awsTranscriptDoc is the JSON document AWS Transcribe writes for a finished job.
type awsTranscriptDoc struct {
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		SpeakerLabels *struct {
			Segments []struct {
				SpeakerLabel string `json:"speaker_label"`
				Items        []struct {
					StartTime    string `json:"start_time"`
					SpeakerLabel string `json:"speaker_label"`
				} `json:"items"`
			} `json:"segments"`
		} `json:"speaker_labels,omitempty"`
		Items []awsItem `json:"items"`
	} `json:"results"`
	Status string `json:"status"`
}

type awsItem struct {
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Type         string `json:"type"`
	SpeakerLabel string `json:"speaker_label,omitempty"`
	Alternatives []struct {
		Confidence string `json:"confidence"`
		Content    string `json:"content"`
	} `json:"alternatives"`
}

// ParseAWSTranscript decodes a Transcribe output document. Speaker segments are
// built from consecutive words with the same speaker label; documents without
// speaker labels yield no segments.
func ParseAWSTranscript(data []byte) (*Transcript, error) {
	var doc awsTranscriptDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	if len(doc.Results.Transcripts) == 0 {
		return nil, fmt.Errorf("transcript document has no transcripts")
	}

	t := &Transcript{Text: strings.TrimSpace(doc.Results.Transcripts[0].Transcript)}
	t.Segments = awsSegments(&doc)
	return t, nil
}

func awsSegments(doc *awsTranscriptDoc) []domain.TranscriptSegment {
	// Older output only labels speakers in speaker_labels; index them by start time.
	speakerAt := map[string]string{}
	if doc.Results.SpeakerLabels != nil {
		for _, seg := range doc.Results.SpeakerLabels.Segments {
			for _, it := range seg.Items {
				label := it.SpeakerLabel
				if label == "" {
					label = seg.SpeakerLabel
				}
				speakerAt[it.StartTime] = label
			}
		}
	}

	var (
		segments []domain.TranscriptSegment
		cur      *domain.TranscriptSegment
		words    strings.Builder
		confSum  float64
		confN    int
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(words.String())
		if confN > 0 {
			cur.Confidence = confSum / float64(confN)
		}
		if cur.Text != "" {
			segments = append(segments, *cur)
		}
		cur = nil
		words.Reset()
		confSum, confN = 0, 0
	}

	for _, it := range doc.Results.Items {
		if len(it.Alternatives) == 0 {
			continue
		}
		alt := it.Alternatives[0]

		if it.Type == "punctuation" {
			if cur != nil {
				words.WriteString(alt.Content)
			}
			continue
		}

		label := it.SpeakerLabel
		if label == "" {
			label = speakerAt[it.StartTime]
		}
		if label == "" {
			continue
		}

		start, _ := strconv.ParseFloat(it.StartTime, 64)
		end, _ := strconv.ParseFloat(it.EndTime, 64)
		role := SpeakerRole(label)

		if cur == nil || cur.Speaker != role {
			flush()
			cur = &domain.TranscriptSegment{Speaker: role, StartTime: start}
		}
		if words.Len() > 0 {
			words.WriteByte(' ')
		}
		words.WriteString(alt.Content)
		cur.EndTime = end
		if c, err := strconv.ParseFloat(alt.Confidence, 64); err == nil {
			confSum += c
			confN++
		}
	}
	flush()

	return segments
}
