package port

import (
	"context"
	"time"

	"github.com/bnema/transcriber/internal/domain"
)

type Fetcher interface {
	// Probe reports the source duration without downloading it.
	Probe(ctx context.Context, sourceURL string) (time.Duration, error)
	// Fetch downloads the best stream at or below quality (max height) into
	// dir and returns the local path.
	Fetch(ctx context.Context, sourceURL string, quality int, dir string) (string, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, mediaPath string, format domain.AudioFormat, dir string) (string, error)
}

type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Summarizer condenses a finished transcript. It is optional; a failure
// leaves the job completed without a summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}
