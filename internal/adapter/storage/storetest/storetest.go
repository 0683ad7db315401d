// Package storetest holds the behaviour every port.JobStore implementation
// must share. Each backend runs it from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) port.JobStore

func newJob() *domain.Job {
	return domain.NewJob("https://youtube.com/watch?v=abc123", 360, time.Now().UTC().Truncate(time.Millisecond))
}

func advance(t *testing.T, s port.JobStore, id string, states ...domain.JobState) {
	t.Helper()
	for _, st := range states {
		_, err := s.Update(context.Background(), id, domain.Transition(st, string(st)))
		require.NoError(t, err)
	}
}

func Run(t *testing.T, factory Factory) {
	t.Run("create and get", func(t *testing.T) { testCreateGet(t, factory(t)) })
	t.Run("duplicate id", func(t *testing.T) { testDuplicate(t, factory(t)) })
	t.Run("unknown id", func(t *testing.T) { testUnknown(t, factory(t)) })
	t.Run("get returns a copy", func(t *testing.T) { testCopy(t, factory(t)) })
	t.Run("full lifecycle", func(t *testing.T) { testLifecycle(t, factory(t)) })
	t.Run("rejects invalid transitions", func(t *testing.T) { testInvalid(t, factory(t)) })
	t.Run("terminal jobs are frozen", func(t *testing.T) { testTerminal(t, factory(t)) })
	t.Run("concurrent updates", func(t *testing.T) { testConcurrent(t, factory(t)) })
	t.Run("list active", func(t *testing.T) { testListActive(t, factory(t)) })
	t.Run("prune terminal", func(t *testing.T) { testPrune(t, factory(t)) })
}

func testCreateGet(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	job := newJob()
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.SourceURL, got.SourceURL)
	assert.Equal(t, 360, got.Quality)
	assert.Equal(t, domain.JobStateQueued, got.State)
	assert.Equal(t, domain.MessageQueued, got.Message)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.ErrorDetail)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", job.CreatedAt, got.CreatedAt)
}

func testDuplicate(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	assert.ErrorIs(t, s.Create(ctx, job), domain.ErrDuplicateID)
}

func testUnknown(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Update(ctx, "missing", domain.Progress("x"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testCopy(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	job := newJob()
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	got.Message = "mutated"
	got.State = domain.JobStateFailed

	again, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageQueued, again.Message)
	assert.Equal(t, domain.JobStateQueued, again.State)
}

func testLifecycle(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	job := newJob()
	require.NoError(t, s.Create(ctx, job))

	advance(t, s, job.ID, domain.JobStateFetching, domain.JobStateConverting, domain.JobStateTranscribing)

	updated, err := s.Update(ctx, job.ID, domain.Complete("Hello world", "transcription complete").WithSummary("A greeting"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, updated.State)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateCompleted, got.State)
	assert.Equal(t, "transcription complete", got.Message)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Hello world", *got.Result)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "A greeting", *got.Summary)
	assert.Nil(t, got.ErrorDetail)
	assert.Empty(t, got.ErrorKind)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func testInvalid(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	job := newJob()
	require.NoError(t, s.Create(ctx, job))

	_, err := s.Update(ctx, job.ID, domain.Transition(domain.JobStateTranscribing, "skip"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateQueued, got.State)
	assert.Equal(t, domain.MessageQueued, got.Message)
}

func testTerminal(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	job := newJob()
	require.NoError(t, s.Create(ctx, job))

	failed, err := s.Update(ctx, job.ID, domain.Fail(domain.ErrorKindDurationExceeded, "too long"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, failed.State)

	_, err = s.Update(ctx, job.ID, domain.Progress("late"))
	assert.ErrorIs(t, err, domain.ErrJobTerminal)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, got.State)
	assert.Equal(t, domain.ErrorKindDurationExceeded, got.ErrorKind)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, "too long", *got.ErrorDetail)
	assert.Nil(t, got.Result)
}

func testConcurrent(t *testing.T, s port.JobStore) {
	ctx := context.Background()
	const jobs, writers = 4, 8

	ids := make([]string, jobs)
	for i := range ids {
		job := newJob()
		require.NoError(t, s.Create(ctx, job))
		ids[i] = job.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, jobs*writers)
	for _, id := range ids {
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(id string, w int) {
				defer wg.Done()
				if _, err := s.Update(ctx, id, domain.Progress(fmt.Sprintf("%s-%d", id, w))); err != nil {
					errs <- err
				}
			}(id, w)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent update: %v", err)
	}

	for _, id := range ids {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateQueued, got.State)
		assert.Contains(t, got.Message, id, "updates must not leak across jobs")
	}
}

func testListActive(t *testing.T, s port.JobStore) {
	lister, ok := s.(port.ActiveLister)
	if !ok {
		t.Skip("store does not list active jobs")
	}
	ctx := context.Background()

	running := newJob()
	done := newJob()
	require.NoError(t, s.Create(ctx, running))
	require.NoError(t, s.Create(ctx, done))
	advance(t, s, running.ID, domain.JobStateFetching)
	_, err := s.Update(ctx, done.ID, domain.Fail(domain.ErrorKindFetch, "404"))
	require.NoError(t, err)

	active, err := lister.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)
	assert.Equal(t, domain.JobStateFetching, active[0].State)
}

func testPrune(t *testing.T, s port.JobStore) {
	pruner, ok := s.(port.Pruner)
	if !ok {
		t.Skip("store does not prune")
	}
	ctx := context.Background()

	active := newJob()
	finished := newJob()
	require.NoError(t, s.Create(ctx, active))
	require.NoError(t, s.Create(ctx, finished))
	_, err := s.Update(ctx, finished.ID, domain.Fail(domain.ErrorKindFetch, "404"))
	require.NoError(t, err)

	n, err := pruner.PruneTerminal(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "recent jobs are kept")

	n, err = pruner.PruneTerminal(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, finished.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, active.ID)
	assert.NoError(t, err)
}
