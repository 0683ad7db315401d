package port

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/transcriber/internal/domain"
)

// JobStore holds job records. Implementations must return copies from Get so
// callers never observe later mutations, and must route Update through
// domain.Job.Apply.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, id string, update domain.JobUpdate) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
}

// ActiveLister is implemented by stores that can enumerate non-terminal jobs,
// used to recover jobs interrupted by a crash.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]*domain.Job, error)
}

// Pruner is implemented by stores that can delete old terminal jobs.
type Pruner interface {
	PruneTerminal(ctx context.Context, before time.Time) (int, error)
}

var (
	ErrLeaseHeld = errors.New("job lease held by another instance")
	ErrLeaseLost = errors.New("job lease lost")
)

// Leaser is implemented by stores shared between processes. The instance
// running a job holds its lease and renews it until the job ends; recovery
// only touches jobs whose lease has expired.
type Leaser interface {
	AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) error
	RenewLease(ctx context.Context, id, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, id, owner string) error
	LeaseHeld(ctx context.Context, id string) (bool, error)
}
