package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle stage of a transcription job.
// Transitions are monotonic: pending -> processing -> completed | failed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var (
	// ErrInvalidTransition is returned when a job status change would move backwards.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrInvalidJob is returned when a job payload does not satisfy the stage contract.
	ErrInvalidJob = errors.New("invalid transcription job")
)

// TranscriptSegment is a contiguous span of transcript attributed to one speaker,
// as reported by a diarizing speech-to-text provider.
type TranscriptSegment struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	StartTime  float64 `json:"startTime,omitempty"`
	EndTime    float64 `json:"endTime,omitempty"`
}

// TranscriptionJob represents one audio file moving through transcription.
// It is the message body for both the transcription and the parser queues.
type TranscriptionJob struct {
	ID             string                 `json:"id"`
	SourceURI      string                 `json:"sourceURI"`
	Status         JobStatus              `json:"status"`
	CreatedAt      time.Time              `json:"createdAt"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
	ErrorMessage   string                 `json:"errorMessage,omitempty"`
	TranscriptText string                 `json:"transcriptText,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Segments       []TranscriptSegment    `json:"segments,omitempty"`
}

// NewTranscriptionJob builds a pending job whose ID is derived from sourceURI alone,
// so redelivered ingestion events map onto the same logical job.
func NewTranscriptionJob(sourceURI string, createdAt time.Time) *TranscriptionJob {
	return &TranscriptionJob{
		ID:        JobIDForSource(sourceURI),
		SourceURI: sourceURI,
		Status:    JobStatusPending,
		CreatedAt: createdAt.UTC(),
		Metadata:  map[string]interface{}{},
	}
}

// IsDone reports whether the job reached a terminal state.
func (j *TranscriptionJob) IsDone() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkProcessing moves a pending job to processing.
func (j *TranscriptionJob) MarkProcessing() error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusProcessing)
	}
	j.Status = JobStatusProcessing
	return nil
}

// MarkCompleted records a successful transcription.
func (j *TranscriptionJob) MarkCompleted(text string, segments []TranscriptSegment, at time.Time) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	completedAt := at.UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &completedAt
	j.TranscriptText = text
	j.Segments = segments
	j.ErrorMessage = ""
	return nil
}

// MarkFailed records a terminal failure. Any partial transcript is discarded.
func (j *TranscriptionJob) MarkFailed(reason string, at time.Time) error {
	if j.IsDone() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusFailed)
	}
	completedAt := at.UTC()
	j.Status = JobStatusFailed
	j.CompletedAt = &completedAt
	j.ErrorMessage = reason
	j.TranscriptText = ""
	j.Segments = nil
	return nil
}

// ValidatePending checks the shape of a job read from the transcription queue.
func (j *TranscriptionJob) ValidatePending() error {
	if j.ID == "" || j.SourceURI == "" {
		return fmt.Errorf("%w: id and sourceURI are required", ErrInvalidJob)
	}
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: expected status %s, got %q", ErrInvalidJob, JobStatusPending, j.Status)
	}
	return nil
}

// ValidateCompleted checks the shape of a job read from the parser queue.
func (j *TranscriptionJob) ValidateCompleted() error {
	if j.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidJob)
	}
	if j.Status != JobStatusCompleted {
		return fmt.Errorf("%w: expected status %s, got %q", ErrInvalidJob, JobStatusCompleted, j.Status)
	}
	if j.CompletedAt == nil {
		return fmt.Errorf("%w: completedAt is required", ErrInvalidJob)
	}
	if j.TranscriptText == "" {
		return fmt.Errorf("%w: transcriptText is empty", ErrInvalidJob)
	}
	return nil
}
