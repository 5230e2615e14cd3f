package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/timmy/callinsight/internal/domain"
)

// HTTPConfig holds configuration for HTTPProvider.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RetryElapsed bounds retries of a single request.
	RetryElapsed time.Duration
}

// HTTPProvider talks to a generic transcription service:
//
//	POST {base}/transcriptions          start (job_name is the idempotency key)
//	GET  {base}/transcriptions/{name}   status
//	GET  {transcript_url}               JSON {text, segments} or plain text
type HTTPProvider struct {
	client       *resty.Client
	baseURL      string
	retryElapsed time.Duration
}

type httpSubmitRequest struct {
	JobName      string `json:"job_name"`
	SourceURI    string `json:"source_uri"`
	MediaFormat  string `json:"media_format"`
	LanguageCode string `json:"language_code"`
	MaxSpeakers  int    `json:"max_speakers,omitempty"`
}

type httpJobResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // queued, processing, completed, failed
	TranscriptURL string `json:"transcript_url"`
	Error         string `json:"error"`
}

type httpTranscriptResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Speaker    string  `json:"speaker"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
	} `json:"segments"`
}

// NewHTTPProvider creates a provider for the service at cfg.BaseURL.
func NewHTTPProvider(cfg *HTTPConfig) *HTTPProvider {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	elapsed := cfg.RetryElapsed
	if elapsed <= 0 {
		elapsed = 15 * time.Second
	}

	return &HTTPProvider{
		client:       client,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		retryElapsed: elapsed,
	}
}

// Submit starts a job. 409 Conflict means the job name exists and is reused.
func (p *HTTPProvider) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body := httpSubmitRequest{
		JobName:      req.JobName,
		SourceURI:    req.SourceURI,
		MediaFormat:  req.MediaFormat,
		LanguageCode: req.LanguageCode,
		MaxSpeakers:  req.MaxSpeakers,
	}

	var out httpJobResponse
	err := p.retry(ctx, func() (*resty.Response, error) {
		return p.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Post(p.baseURL + "/transcriptions")
	}, http.StatusConflict)
	if err != nil {
		return "", fmt.Errorf("failed to submit transcription %s: %w", req.JobName, err)
	}
	return req.JobName, nil
}

// Poll reads the job status.
func (p *HTTPProvider) Poll(ctx context.Context, handle string) (PollResult, error) {
	var out httpJobResponse
	err := p.retry(ctx, func() (*resty.Response, error) {
		return p.client.R().SetContext(ctx).SetResult(&out).Get(p.baseURL + "/transcriptions/" + handle)
	})
	if err != nil {
		return PollResult{}, fmt.Errorf("failed to poll transcription %s: %w", handle, err)
	}

	switch strings.ToLower(out.Status) {
	case "completed", "success":
		return PollResult{Status: StatusCompleted, TranscriptURI: out.TranscriptURL}, nil
	case "failed":
		return PollResult{Status: StatusFailed, FailureReason: out.Error}, nil
	default:
		return PollResult{Status: StatusRunning}, nil
	}
}

// Fetch downloads the transcript. Non-JSON bodies are taken as plain text.
func (p *HTTPProvider) Fetch(ctx context.Context, location string) (*Transcript, error) {
	var resp *resty.Response
	err := p.retry(ctx, func() (*resty.Response, error) {
		r, err := p.client.R().SetContext(ctx).Get(location)
		resp = r
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download transcript: %w", err)
	}

	if !strings.Contains(resp.Header().Get("Content-Type"), "json") {
		return &Transcript{Text: strings.TrimSpace(string(resp.Body()))}, nil
	}

	var doc httpTranscriptResponse
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	t := &Transcript{Text: strings.TrimSpace(doc.Text)}
	for _, s := range doc.Segments {
		t.Segments = append(t.Segments, domain.TranscriptSegment{
			Speaker:    SpeakerRole(s.Speaker),
			Text:       s.Text,
			Confidence: s.Confidence,
			StartTime:  s.Start,
			EndTime:    s.End,
		})
	}
	return t, nil
}

// retry runs call with exponential backoff. 5xx and transport errors are
// retried; other 4xx are permanent unless listed in accept.
func (p *HTTPProvider) retry(ctx context.Context, call func() (*resty.Response, error), accept ...int) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.retryElapsed

	op := func() error {
		resp, err := call()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		for _, code := range accept {
			if resp.StatusCode() == code {
				return nil
			}
		}
		switch {
		case resp.StatusCode() >= 500:
			return fmt.Errorf("server error: HTTP %d", resp.StatusCode())
		case resp.StatusCode() >= 400:
			return backoff.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body())))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
