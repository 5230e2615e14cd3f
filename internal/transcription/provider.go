// Package transcription adapts external speech-to-text services to a
// submit / poll / fetch contract.
package transcription

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"

	"github.com/timmy/callinsight/internal/domain"
)

// Status is the state of an external transcription job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrEmptyTranscript is returned when a provider completes without any text.
var ErrEmptyTranscript = errors.New("transcript is empty")

// SubmitRequest describes one audio file to transcribe. JobName is unique per
// attempt and doubles as the idempotency key at the provider.
type SubmitRequest struct {
	JobName      string
	SourceURI    string
	MediaFormat  string
	LanguageCode string
	MaxSpeakers  int
}

// PollResult is the provider's view of a submitted job.
type PollResult struct {
	Status        Status
	TranscriptURI string
	FailureReason string
}

// Transcript is the text of a finished job plus optional speaker segments.
type Transcript struct {
	Text     string
	Segments []domain.TranscriptSegment
}

// Provider is an external speech-to-text capability.
type Provider interface {
	// Submit starts a job and returns the handle to poll. Submitting a JobName
	// that already exists returns the existing job's handle.
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// Poll reports the job's status.
	Poll(ctx context.Context, handle string) (PollResult, error)

	// Fetch downloads and decodes the transcript at location.
	Fetch(ctx context.Context, location string) (*Transcript, error)
}

var mediaFormats = map[string]string{
	".mp3":  "mp3",
	".mp4":  "mp4",
	".m4a":  "mp4",
	".wav":  "wav",
	".flac": "flac",
	".ogg":  "ogg",
	".webm": "webm",
}

// MediaFormatForURI maps the file extension of uri to a media format name,
// defaulting to mp3.
func MediaFormatForURI(uri string) string {
	if f, ok := mediaFormats[strings.ToLower(path.Ext(uri))]; ok {
		return f
	}
	return "mp3"
}

// SpeakerRole maps provider speaker labels (spk_0, spk_1, ...) to conversation
// roles (speaker_1, speaker_2, ...). Unknown labels pass through.
func SpeakerRole(label string) string {
	n, ok := strings.CutPrefix(label, "spk_")
	if !ok {
		return label
	}
	i, err := strconv.Atoi(n)
	if err != nil || i < 0 {
		return label
	}
	return "speaker_" + strconv.Itoa(i+1)
}
