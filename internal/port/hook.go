package port

import (
	"context"

	"github.com/bnema/transcriber/internal/domain"
)

// ResultHook receives every job once it reaches a terminal state.
type ResultHook interface {
	Name() string
	Deliver(ctx context.Context, job *domain.Job) error
}
