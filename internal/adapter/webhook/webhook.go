// Package webhook posts finished jobs to a configured URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/retry"
	"github.com/bnema/transcriber/internal/port"
)

var ErrURLRequired = errors.New("webhook url is required")

const defaultAttempts = 5

type Payload struct {
	JobID     string           `json:"job_id"`
	SourceURL string           `json:"source_url"`
	State     domain.JobState  `json:"state"`
	Result    *string          `json:"result,omitempty"`
	Summary   *string          `json:"summary,omitempty"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Error     *string          `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Notifier struct {
	url      string
	client   *http.Client
	backoff  *retry.Backoff
	attempts int
}

func New(url string, client *http.Client) (*Notifier, error) {
	if url == "" {
		return nil, ErrURLRequired
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{
		url:      url,
		client:   client,
		backoff:  retry.NewBackoff(500*time.Millisecond, 30*time.Second, 2.0),
		attempts: defaultAttempts,
	}, nil
}

func (n *Notifier) Name() string {
	return "webhook"
}

func (n *Notifier) Deliver(ctx context.Context, job *domain.Job) error {
	body, err := json.Marshal(Payload{
		JobID:     job.ID,
		SourceURL: job.SourceURL,
		State:     job.State,
		Result:    job.Result,
		Summary:   job.Summary,
		ErrorKind: job.ErrorKind,
		Error:     job.ErrorDetail,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	return retry.Do(ctx, n.attempts, n.backoff, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
}

var _ port.ResultHook = (*Notifier)(nil)
