package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStageError(t *testing.T) {
	tests := []struct {
		name  string
		stage JobState
		err   error
		want  ErrorKind
	}{
		{"fetch default", JobStateFetching, errors.New("network down"), ErrorKindFetch},
		{"convert default", JobStateConverting, errors.New("exit status 1"), ErrorKindTranscode},
		{"transcribe default", JobStateTranscribing, errors.New("model missing"), ErrorKindRecognition},
		{"queued default", JobStateQueued, errors.New("probe exploded"), ErrorKindInternal},
		{"duration sentinel", JobStateQueued, fmt.Errorf("%w: 900s > 600s", ErrDurationExceeded), ErrorKindDurationExceeded},
		{"unsupported sentinel", JobStateConverting, fmt.Errorf("%w: .avi", ErrUnsupportedFormat), ErrorKindUnsupportedFormat},
		{"sentinel beats stage", JobStateConverting, fmt.Errorf("wrapped: %w", ErrRecognition), ErrorKindRecognition},
		{"canceled", JobStateFetching, fmt.Errorf("yt-dlp: %w", context.Canceled), ErrorKindCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := ClassifyStageError(tt.stage, tt.err)
			assert.Equal(t, tt.want, se.Kind)
			assert.Equal(t, tt.stage, se.Stage)
			assert.ErrorIs(t, se, tt.err)
		})
	}
}

func TestClassifyStageError_KeepsExistingStageError(t *testing.T) {
	orig := &StageError{Kind: ErrorKindUnsupportedFormat, Stage: JobStateConverting, Err: errors.New("x")}
	got := ClassifyStageError(JobStateTranscribing, fmt.Errorf("outer: %w", orig))
	assert.Same(t, orig, got)
}

func TestStageError_Error(t *testing.T) {
	se := &StageError{Kind: ErrorKindFetch, Stage: JobStateFetching, Err: errors.New("404")}
	assert.Equal(t, "fetching: fetch_error: 404", se.Error())
}
