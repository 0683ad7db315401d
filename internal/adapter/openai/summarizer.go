package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/transcriber/internal/port"
)

var ErrSummary = errors.New("summary failed")

const DefaultSummaryPrompt = "Summarize the following text:"

type SummarizerOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	// Prompt is sent ahead of the transcript in a single user message.
	Prompt  string
	Timeout time.Duration
}

// Summarizer asks a /chat/completions endpoint for a transcript summary.
type Summarizer struct {
	opts SummarizerOptions
	api  apiClient
}

func NewSummarizer(opts SummarizerOptions, client *http.Client) (*Summarizer, error) {
	if opts.BaseURL == "" {
		return nil, ErrURLRequired
	}
	if opts.Model == "" {
		return nil, errors.New("summary model is required")
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultSummaryPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Summarizer{
		opts: opts,
		api:  newAPIClient(opts.BaseURL, opts.APIKey, opts.Timeout, client),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.opts.Model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: s.opts.Prompt + " " + strings.Join(strings.Fields(transcript), " "),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummary, err)
	}

	var out chatResponse
	if err := s.api.post(ctx, "/chat/completions", "application/json", bytes.NewReader(body), &out); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrSummary, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrSummary)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

var _ port.Summarizer = (*Summarizer)(nil)
