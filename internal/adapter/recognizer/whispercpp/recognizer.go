// Package whispercpp transcribes audio with the whisper.cpp command line tool.
package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/command"
	"github.com/bnema/transcriber/internal/port"
)

var ErrModelRequired = errors.New("whisper model path is required")

type Options struct {
	Binary   string
	Model    string
	Language string
	Threads  int
}

type Recognizer struct {
	opts   Options
	runner command.Runner
}

func NewRecognizer(opts Options, runner command.Runner) (*Recognizer, error) {
	if opts.Model == "" {
		return nil, ErrModelRequired
	}
	if opts.Binary == "" {
		opts.Binary = "whisper-cli"
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Recognizer{opts: opts, runner: runner}, nil
}

// Transcribe writes the transcript next to audioPath and returns its text.
func (r *Recognizer) Transcribe(ctx context.Context, audioPath string) (string, error) {
	outBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	args := []string{
		"-m", r.opts.Model,
		"-f", audioPath,
		"-l", r.opts.Language,
		"-nt",
		"-np",
		"-otxt",
		"-of", outBase,
	}
	if r.opts.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(r.opts.Threads))
	}

	res, err := r.runner.Run(ctx, r.opts.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrRecognition, err)
	}

	data, err := os.ReadFile(outBase + ".txt")
	if errors.Is(err, os.ErrNotExist) {
		// Older builds ignore -otxt and only print to stdout.
		return res.Stdout, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read transcript: %v", domain.ErrRecognition, err)
	}
	return string(data), nil
}

var _ port.Recognizer = (*Recognizer)(nil)
