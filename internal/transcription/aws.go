package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/go-resty/resty/v2"
	"github.com/timmy/callinsight/internal/storage"
)

// TranscribeAPI is the subset of the AWS Transcribe client used by AWSProvider.
type TranscribeAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// AWSConfig holds configuration for AWSProvider.
type AWSConfig struct {
	// OutputBucket receives transcript documents. When empty Transcribe keeps
	// them in a service bucket and reports a presigned URL.
	OutputBucket string
	// Storage reads transcripts written to OutputBucket.
	Storage storage.ObjectStorage
}

// AWSProvider runs jobs on AWS Transcribe with speaker labelling.
type AWSProvider struct {
	client       TranscribeAPI
	outputBucket string
	storage      storage.ObjectStorage
	http         *resty.Client
}

// NewAWSProvider creates an AWS Transcribe provider.
func NewAWSProvider(client TranscribeAPI, cfg *AWSConfig) *AWSProvider {
	return &AWSProvider{
		client:       client,
		outputBucket: cfg.OutputBucket,
		storage:      cfg.Storage,
		http:         resty.New(),
	}
}

// Submit starts a transcription job named req.JobName. A ConflictException
// means the job already exists and is reused.
func (p *AWSProvider) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(req.JobName),
		Media:                &types.Media{MediaFileUri: aws.String(req.SourceURI)},
		MediaFormat:          types.MediaFormat(req.MediaFormat),
		LanguageCode:         types.LanguageCode(req.LanguageCode),
	}
	if req.MaxSpeakers > 1 {
		in.Settings = &types.Settings{
			ShowSpeakerLabels: aws.Bool(true),
			MaxSpeakerLabels:  aws.Int32(int32(req.MaxSpeakers)),
		}
	}
	if p.outputBucket != "" {
		in.OutputBucketName = aws.String(p.outputBucket)
	}

	if _, err := p.client.StartTranscriptionJob(ctx, in); err != nil {
		var conflict *types.ConflictException
		if errors.As(err, &conflict) {
			return req.JobName, nil
		}
		return "", fmt.Errorf("failed to start transcription job %s: %w", req.JobName, err)
	}
	return req.JobName, nil
}

// Poll reads the job status.
func (p *AWSProvider) Poll(ctx context.Context, handle string) (PollResult, error) {
	out, err := p.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(handle),
	})
	if err != nil {
		return PollResult{}, fmt.Errorf("failed to get transcription job %s: %w", handle, err)
	}
	job := out.TranscriptionJob
	if job == nil {
		return PollResult{}, fmt.Errorf("transcription job %s not returned", handle)
	}

	switch job.TranscriptionJobStatus {
	case types.TranscriptionJobStatusCompleted:
		res := PollResult{Status: StatusCompleted}
		if job.Transcript != nil {
			res.TranscriptURI = aws.ToString(job.Transcript.TranscriptFileUri)
		}
		return res, nil
	case types.TranscriptionJobStatusFailed:
		return PollResult{Status: StatusFailed, FailureReason: aws.ToString(job.FailureReason)}, nil
	default:
		return PollResult{Status: StatusRunning}, nil
	}
}

// Fetch reads the transcript document from the output bucket through storage,
// or over HTTPS for service-managed locations.
func (p *AWSProvider) Fetch(ctx context.Context, location string) (*Transcript, error) {
	var data []byte

	loc, err := storage.ParseURI(location)
	if err == nil && p.storage != nil && loc.Bucket == p.storage.Bucket() {
		body, err := p.storage.Download(ctx, loc.Key)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		if data, err = io.ReadAll(body); err != nil {
			return nil, fmt.Errorf("failed to read transcript %s: %w", location, err)
		}
	} else {
		resp, err := p.http.R().SetContext(ctx).Get(location)
		if err != nil {
			return nil, fmt.Errorf("failed to download transcript: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("failed to download transcript: HTTP %d", resp.StatusCode())
		}
		data = resp.Body()
	}

	return ParseAWSTranscript(data)
}
