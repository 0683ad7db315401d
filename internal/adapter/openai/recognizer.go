package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

var ErrURLRequired = errors.New("api url is required")

type Options struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

type Recognizer struct {
	opts Options
	api  apiClient
}

func NewRecognizer(opts Options, client *http.Client) (*Recognizer, error) {
	if opts.BaseURL == "" {
		return nil, ErrURLRequired
	}
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Recognizer{
		opts: opts,
		api:  newAPIClient(opts.BaseURL, opts.APIKey, opts.Timeout, client),
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (r *Recognizer) Transcribe(ctx context.Context, audioPath string) (string, error) {
	body, contentType, err := r.multipartBody(audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRecognition, err)
	}

	var out transcriptionResponse
	if err := r.api.post(ctx, "/audio/transcriptions", contentType, body, &out); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrRecognition, err)
	}
	return out.Text, nil
}

func (r *Recognizer) multipartBody(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	fields := map[string]string{"model": r.opts.Model, "response_format": "json"}
	if r.opts.Language != "" && r.opts.Language != "auto" {
		fields["language"] = r.opts.Language
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var _ port.Recognizer = (*Recognizer)(nil)
