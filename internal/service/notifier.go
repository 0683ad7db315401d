package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/logger"
	"github.com/bnema/transcriber/internal/port"
)

const DefaultPollInterval = 5 * time.Second

// Update is one message of a progress stream.
type Update struct {
	JobID     string           `json:"job_id"`
	State     domain.JobState  `json:"state,omitempty"`
	Message   string           `json:"message"`
	Result    *string          `json:"result,omitempty"`
	Summary   *string          `json:"summary,omitempty"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Error     *string          `json:"error,omitempty"`
	Terminal  bool             `json:"terminal"`
	NotFound  bool             `json:"not_found,omitempty"`
}

func UpdateFromJob(job *domain.Job) Update {
	u := Update{
		JobID:    job.ID,
		State:    job.State,
		Message:  job.Message,
		Terminal: job.IsTerminal(),
	}
	if job.IsTerminal() {
		u.Result = job.Result
		u.Summary = job.Summary
		u.ErrorKind = job.ErrorKind
		u.Error = job.ErrorDetail
	}
	return u
}

func notFoundUpdate(id string) Update {
	return Update{JobID: id, Message: "job not found", Terminal: true, NotFound: true}
}

// Notifier turns job store state into a stream of updates. Event bus
// wake-ups give low latency; the poll tick guarantees progress even when
// events were dropped or published by another process.
type Notifier struct {
	store    port.JobStore
	bus      *EventBus
	interval time.Duration
}

func NewNotifier(store port.JobStore, bus *EventBus, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Notifier{store: store, bus: bus, interval: interval}
}

// Subscribe streams updates for id. The first update reflects the current
// state. The channel is closed right after the single terminal update, after
// a not-found update, or when ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, id string) <-chan Update {
	out := make(chan Update, 1)

	var wake <-chan Event
	unsubscribe := func() {}
	if n.bus != nil {
		// Subscribe before the first read so no transition slips between.
		wake, unsubscribe = n.bus.Subscribe(id)
	}

	go func() {
		defer close(out)
		defer unsubscribe()

		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		var last Update
		first := true
		for {
			job, err := n.store.Get(ctx, id)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				send(ctx, out, notFoundUpdate(id))
				return
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				logger.L().Warn("notifier read failed", zap.String("job_id", id), zap.Error(err))
			default:
				u := UpdateFromJob(job)
				if u.Terminal {
					send(ctx, out, u)
					return
				}
				if first || u != last {
					if !send(ctx, out, u) {
						return
					}
					last, first = u, false
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-ticker.C:
				// A tick re-emits the current message even if unchanged.
				first = true
			}
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
