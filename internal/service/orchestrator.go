package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/logger"
	"github.com/bnema/transcriber/internal/port"
)

var (
	// ErrCanceled is the cause recorded when a client cancels a job.
	ErrCanceled   = errors.New("canceled by request")
	ErrNotRunning = errors.New("job is not running in this process")
)

const (
	defaultQuality = 360
	writeTimeout   = 10 * time.Second
	hookTimeout    = 2 * time.Minute
	leaseTTL       = 30 * time.Second
)

// Stages bundles the external tools one pipeline run drives.
type Stages struct {
	Fetcher    port.Fetcher
	Transcoder port.Transcoder
	Recognizer port.Recognizer
	// Summarizer is optional.
	Summarizer port.Summarizer
}

type Options struct {
	WorkDir        string
	DefaultQuality int
	// MaxDuration rejects sources longer than this before anything is
	// downloaded. Zero disables the probe.
	MaxDuration  time.Duration
	JobTimeout   time.Duration
	AudioFormat  domain.AudioFormat
	AllowedHosts []string
	// LeaseTTL bounds how long a job outlives a crashed instance on a
	// shared store before another instance may recover it.
	LeaseTTL time.Duration
}

type runningJob struct {
	cancel context.CancelCauseFunc
	// done stops the lease heartbeat.
	done chan struct{}
}

type Orchestrator struct {
	store     port.JobStore
	stages    Stages
	pool      *WorkerPool
	events    EventPublisher
	hooks     []port.ResultHook
	validator *domain.SourceValidator
	opts      Options
	now       func() time.Time

	// leases is set when the store is shared between instances.
	leases   port.Leaser
	instance string

	mu      sync.Mutex
	running map[string]runningJob
	hookWG  sync.WaitGroup
}

func NewOrchestrator(store port.JobStore, stages Stages, pool *WorkerPool, events EventPublisher, opts Options) *Orchestrator {
	if opts.DefaultQuality <= 0 {
		opts.DefaultQuality = defaultQuality
	}
	if opts.AudioFormat.SampleRate <= 0 || opts.AudioFormat.Channels <= 0 {
		opts.AudioFormat = domain.DefaultAudioFormat()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = leaseTTL
	}
	leases, _ := store.(port.Leaser)
	return &Orchestrator{
		store:     store,
		stages:    stages,
		pool:      pool,
		events:    events,
		validator: domain.NewSourceValidator(opts.AllowedHosts),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		leases:    leases,
		instance:  uuid.NewString(),
		running:   make(map[string]runningJob),
	}
}

// AddHook registers a hook that receives every job after it turns terminal.
func (o *Orchestrator) AddHook(h port.ResultHook) {
	o.hooks = append(o.hooks, h)
}

// Submit validates the source, records a queued job and schedules its
// pipeline. It returns as soon as the job is persisted.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL string, quality int) (string, error) {
	url, err := o.validator.Validate(sourceURL)
	if err != nil {
		return "", err
	}
	if quality <= 0 {
		quality = o.opts.DefaultQuality
	}

	job := domain.NewJob(url, quality, o.now())
	// The lease goes first so recovery elsewhere never sees the job unleased.
	if o.leases != nil {
		if err := o.leases.AcquireLease(ctx, job.ID, o.instance, o.opts.LeaseTTL); err != nil {
			return "", fmt.Errorf("lease job: %w", err)
		}
	}
	if err := o.store.Create(ctx, job); err != nil {
		o.releaseLease(job.ID)
		return "", fmt.Errorf("create job: %w", err)
	}
	o.publish(job)

	jobCtx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	o.mu.Lock()
	o.running[job.ID] = runningJob{cancel: cancel, done: done}
	o.mu.Unlock()
	if o.leases != nil {
		go o.heartbeat(job.ID, done)
	}

	err = o.pool.Go(
		func(poolCtx context.Context) {
			stop := context.AfterFunc(poolCtx, func() { cancel(context.Cause(poolCtx)) })
			defer stop()
			o.execute(jobCtx, job)
		},
		func() { o.reject(job, ErrShuttingDown) },
	)
	if err != nil {
		o.reject(job, ErrShuttingDown)
		return "", err
	}

	logger.L().Info("job submitted",
		zap.String("job_id", job.ID),
		logger.Input("source_url", url),
		zap.Int("quality", quality),
	)
	return job.ID, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.Job, error) {
	return o.store.Get(ctx, id)
}

// Cancel asks the running pipeline of id to stop. The current stage fails
// with kind canceled; cleanup still runs.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrJobTerminal, job.State)
	}

	o.mu.Lock()
	run, ok := o.running[id]
	o.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	run.cancel(ErrCanceled)
	logger.L().Info("job cancel requested", zap.String("job_id", id), zap.String("state", string(job.State)))
	return nil
}

func (o *Orchestrator) owns(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[id]
	return ok
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	run, ok := o.running[id]
	delete(o.running, id)
	o.mu.Unlock()
	if !ok {
		return
	}
	close(run.done)
	run.cancel(nil)
	o.releaseLease(id)
}

// heartbeat renews the lease of id until done is closed.
func (o *Orchestrator) heartbeat(id string, done <-chan struct{}) {
	ticker := time.NewTicker(o.opts.LeaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := o.leases.RenewLease(ctx, id, o.instance, o.opts.LeaseTTL)
			cancel()
			if errors.Is(err, port.ErrLeaseLost) {
				logger.L().Error("job lease lost", zap.String("job_id", id), zap.String("instance", o.instance))
				return
			}
			if err != nil {
				logger.L().Warn("renew job lease failed", zap.String("job_id", id), zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) releaseLease(id string) {
	if o.leases == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := o.leases.ReleaseLease(ctx, id, o.instance); err != nil {
		logger.L().Warn("release job lease failed", zap.String("job_id", id), zap.Error(err))
	}
}

// live reports whether id is running here or leased by another instance.
func (o *Orchestrator) live(ctx context.Context, id string) bool {
	if o.owns(id) {
		return true
	}
	if o.leases == nil {
		return false
	}
	held, err := o.leases.LeaseHeld(ctx, id)
	if err != nil {
		logger.L().Warn("check job lease failed", zap.String("job_id", id), zap.Error(err))
		return true
	}
	return held
}

// execute runs one job end to end on a pool goroutine.
func (o *Orchestrator) execute(ctx context.Context, job *domain.Job) {
	defer o.release(job.ID)

	if o.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, o.opts.JobTimeout,
			fmt.Errorf("job exceeded the %s time limit", o.opts.JobTimeout))
		defer cancel()
	}

	ws, final := o.runPipeline(ctx, job)
	if ws != nil {
		if err := ws.Cleanup(); err != nil {
			logger.L().Warn("workspace cleanup failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	o.finish(ctx, job.ID, final)
}

// finish writes the terminal update, which must land even if ctx was
// canceled, then hands the job to the hooks.
func (o *Orchestrator) finish(ctx context.Context, id string, final domain.JobUpdate) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	job, err := o.store.Update(wctx, id, final)
	if err != nil {
		logger.L().Error("record terminal state failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	o.publish(job)

	fields := []zap.Field{zap.String("job_id", id), zap.String("state", string(job.State))}
	if job.State == domain.JobStateFailed {
		fields = append(fields, zap.String("error_kind", string(job.ErrorKind)), zap.Stringp("error", job.ErrorDetail))
		logger.L().Warn("job failed", fields...)
	} else {
		fields = append(fields, zap.Duration("elapsed", job.UpdatedAt.Sub(job.CreatedAt)))
		logger.L().Info("job completed", fields...)
	}

	o.deliver(job)
}

func (o *Orchestrator) reject(job *domain.Job, cause error) {
	defer o.release(job.ID)
	o.finish(context.Background(), job.ID, domain.Fail(domain.ErrorKindInternal, cause.Error()))
}

func (o *Orchestrator) deliver(job *domain.Job) {
	for _, h := range o.hooks {
		o.hookWG.Add(1)
		go func(h port.ResultHook) {
			defer o.hookWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
			defer cancel()
			if err := h.Deliver(ctx, job.Clone()); err != nil {
				logger.L().Error("result hook failed",
					zap.String("hook", h.Name()), zap.String("job_id", job.ID), zap.Error(err))
			}
		}(h)
	}
}

// update persists a non-terminal change and announces it.
func (o *Orchestrator) update(ctx context.Context, id string, u domain.JobUpdate) error {
	job, err := o.store.Update(ctx, id, u)
	if err != nil {
		return err
	}
	o.publish(job)
	return nil
}

func (o *Orchestrator) publish(job *domain.Job) {
	if o.events == nil {
		return
	}
	o.events.Publish(job.ID, Event{JobID: job.ID, State: job.State, Message: job.Message})
}

// Recover fails the non-terminal jobs a previous process left behind and
// removes their workspaces. On a shared store, jobs another instance still
// holds a lease on are left alone.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	recovered := 0
	if lister, ok := o.store.(port.ActiveLister); ok {
		jobs, err := lister.ListActive(ctx)
		if err != nil {
			return 0, fmt.Errorf("list active jobs: %w", err)
		}
		for _, job := range jobs {
			if o.live(ctx, job.ID) {
				continue
			}
			updated, err := o.store.Update(ctx, job.ID, domain.Fail(domain.ErrorKindInternal, "interrupted"))
			if err != nil {
				logger.L().Warn("recover job failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			o.publish(updated)
			o.deliver(updated)
			recovered++
		}
	}

	if o.opts.WorkDir != "" {
		removed, err := removeStaleWorkspaces(o.opts.WorkDir, func(id string) bool {
			return o.live(ctx, id)
		})
		if err != nil {
			return recovered, err
		}
		if removed > 0 {
			logger.L().Info("removed stale workspaces", zap.Int("count", removed))
		}
	}
	if recovered > 0 {
		logger.L().Info("failed interrupted jobs", zap.Int("count", recovered))
	}
	return recovered, nil
}

// Prune deletes terminal jobs last updated before now-retention. Stores that
// cannot prune (they expire records themselves) report zero.
func (o *Orchestrator) Prune(ctx context.Context, retention time.Duration) (int, error) {
	pruner, ok := o.store.(port.Pruner)
	if !ok || retention <= 0 {
		return 0, nil
	}
	return pruner.PruneTerminal(ctx, o.now().Add(-retention))
}

// RunRetention prunes on every tick until ctx is done.
func (o *Orchestrator) RunRetention(ctx context.Context, retention, every time.Duration) {
	if retention <= 0 {
		return
	}
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.Prune(ctx, retention)
			if err != nil {
				logger.L().Error("retention sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.L().Info("pruned finished jobs", zap.Int("count", n))
			}
		}
	}
}

// Shutdown stops the pool and waits for pending hook deliveries.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.pool.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		o.hookWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
