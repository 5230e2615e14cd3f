package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// Prompt is a system/user message pair for one answer.
type Prompt struct {
	System string
	User   string
}

// AnswerGenerator answers a prompt with free text.
type AnswerGenerator interface {
	Answer(ctx context.Context, prompt Prompt) (string, error)
	Model() string
}

// OpenAIAnswerGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIAnswerGenerator struct {
	client       *resty.Client
	model        string
	endpoint     string
	temperature  float64
	maxTokens    int
	maxRetries   int
	retryElapsed time.Duration
}

// OpenAIConfig holds configuration for OpenAIAnswerGenerator.
type OpenAIConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// MaxRetries bounds retries of transient failures (network, 429, 5xx).
	MaxRetries int
}

// NewOpenAIAnswerGenerator creates a chat-completions client.
func NewOpenAIAnswerGenerator(cfg *OpenAIConfig) *OpenAIAnswerGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIAnswerGenerator{
		client:       client,
		model:        cfg.Model,
		endpoint:     baseURL + "/chat/completions",
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxRetries:   cfg.MaxRetries,
		retryElapsed: 2 * timeout,
	}
}

// Model returns the model name being used.
func (g *OpenAIAnswerGenerator) Model() string {
	return g.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Answer sends the prompt and returns the first choice's content, trimmed.
// Client errors other than 429 are not retried.
func (g *OpenAIAnswerGenerator) Answer(ctx context.Context, prompt Prompt) (string, error) {
	req := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	var answer string
	op := func() error {
		var resp chatResponse
		httpResp, err := g.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&resp).
			SetError(&resp).
			Post(g.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to call chat API: %w", err)
		}

		if code := httpResp.StatusCode(); code < 200 || code >= 300 {
			errorMsg := fmt.Sprintf("HTTP %d: %s", code, string(httpResp.Body()))
			if resp.Error != nil {
				errorMsg = fmt.Sprintf("HTTP %d: %s", code, resp.Error.Message)
			}
			err := fmt.Errorf("chat API returned error: %s", errorMsg)
			if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		if resp.Error != nil {
			return backoff.Permanent(fmt.Errorf("chat API error: %s", resp.Error.Message))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("no choices in chat API response (status: %d)", httpResp.StatusCode()))
		}

		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = g.retryElapsed
	var policy backoff.BackOff = backoff.WithContext(bo, ctx)
	if g.maxRetries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(g.maxRetries))
	}

	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return answer, nil
}

// ErrMockAnswer is returned by MockAnswerGenerator for questions listed in FailOn.
var ErrMockAnswer = errors.New("mock answer failure")

// MockAnswerGenerator returns canned answers. It backs local runs and tests.
type MockAnswerGenerator struct {
	mu sync.Mutex

	// Reply is returned for every prompt, "mock answer" when empty.
	Reply string
	// FailOn makes prompts whose user text contains any of these strings fail.
	FailOn []string
	// Delay is waited before answering, honoring ctx.
	Delay time.Duration

	prompts []Prompt
}

func (m *MockAnswerGenerator) Model() string { return "mock" }

func (m *MockAnswerGenerator) Answer(ctx context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	for _, s := range m.FailOn {
		if strings.Contains(prompt.User, s) {
			return "", ErrMockAnswer
		}
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "mock answer", nil
}

// Calls returns the number of prompts received.
func (m *MockAnswerGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the prompts received so far.
func (m *MockAnswerGenerator) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
