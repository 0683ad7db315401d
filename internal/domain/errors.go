package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrMissingURL        = errors.New("source url is required")
	ErrInvalidURL        = errors.New("source url is not supported")
	ErrNotFound          = errors.New("job not found")
	ErrDuplicateID       = errors.New("job id already exists")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrJobTerminal       = errors.New("job already finished")
)

// Stage failures. Adapters wrap these so the orchestrator can classify them.
var (
	ErrDurationExceeded  = errors.New("source duration exceeds limit")
	ErrFetch             = errors.New("fetch failed")
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrTranscode         = errors.New("transcode failed")
	ErrRecognition       = errors.New("recognition failed")
)

type ErrorKind string

const (
	ErrorKindDurationExceeded  ErrorKind = "duration_exceeded"
	ErrorKindFetch             ErrorKind = "fetch_error"
	ErrorKindUnsupportedFormat ErrorKind = "unsupported_format"
	ErrorKindTranscode         ErrorKind = "transcode_error"
	ErrorKindRecognition       ErrorKind = "recognition_error"
	ErrorKindCanceled          ErrorKind = "canceled"
	ErrorKindInternal          ErrorKind = "internal_error"
)

// StageError is a pipeline failure tied to the state it happened in.
type StageError struct {
	Kind  ErrorKind
	Stage JobState
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var sentinelKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrDurationExceeded, ErrorKindDurationExceeded},
	{ErrUnsupportedFormat, ErrorKindUnsupportedFormat},
	{ErrFetch, ErrorKindFetch},
	{ErrTranscode, ErrorKindTranscode},
	{ErrRecognition, ErrorKindRecognition},
}

var stageKinds = map[JobState]ErrorKind{
	JobStateFetching:     ErrorKindFetch,
	JobStateConverting:   ErrorKindTranscode,
	JobStateTranscribing: ErrorKindRecognition,
}

// ClassifyStageError wraps err into a StageError. A sentinel carried by err
// wins over the default kind of the stage.
func ClassifyStageError(stage JobState, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) {
		return &StageError{Kind: ErrorKindCanceled, Stage: stage, Err: err}
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return &StageError{Kind: s.kind, Stage: stage, Err: err}
		}
	}
	kind, ok := stageKinds[stage]
	if !ok {
		kind = ErrorKindInternal
	}
	return &StageError{Kind: kind, Stage: stage, Err: err}
}
