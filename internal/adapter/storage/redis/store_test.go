package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/adapter/storage/storetest"
	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

func newTestStore(t *testing.T, retention time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore(Options{Addr: mr.Addr(), Prefix: "test", Retention: retention})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) port.JobStore {
		s, _ := newTestStore(t, 0)
		return s
	})
}

func TestNewStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewStore(Options{Addr: addr})
	assert.Error(t, err)
}

func TestStore_KeysAndActiveIndex(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	job := domain.NewJob("https://youtu.be/abc", 360, time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))

	assert.True(t, mr.Exists("test:job:"+job.ID))
	members, err := mr.Members("test:jobs:active")
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, members)

	_, err = s.Update(ctx, job.ID, domain.Fail(domain.ErrorKindFetch, "404"))
	require.NoError(t, err)

	members, _ = mr.Members("test:jobs:active")
	assert.Empty(t, members, "terminal jobs leave the active set")
	assert.Zero(t, mr.TTL("test:job:"+job.ID), "no retention configured")
}

func TestStore_RetentionExpiresTerminalJobs(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, time.Hour)

	job := domain.NewJob("https://youtu.be/abc", 360, time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))
	_, err := s.Update(ctx, job.ID, domain.Transition(domain.JobStateFetching, "downloading video"))
	require.NoError(t, err)
	assert.Zero(t, mr.TTL("test:job:"+job.ID), "active jobs never expire")

	_, err = s.Update(ctx, job.ID, domain.Fail(domain.ErrorKindFetch, "404"))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("test:job:"+job.ID))

	mr.FastForward(time.Hour + time.Second)
	_, err = s.Get(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ListActiveDropsVanishedKeys(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	job := domain.NewJob("https://youtu.be/abc", 360, time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))
	mr.Del("test:job:" + job.ID)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	members, _ := mr.Members("test:jobs:active")
	assert.Empty(t, members)
}

func TestStore_SharedBetweenClients(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestStore(t, 0)
	b := NewStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), Options{Prefix: "test"})
	t.Cleanup(func() { _ = b.Close() })

	job := domain.NewJob("https://youtu.be/abc", 360, time.Now().UTC())
	require.NoError(t, a.Create(ctx, job))
	_, err := b.Update(ctx, job.ID, domain.Transition(domain.JobStateFetching, "downloading video"))
	require.NoError(t, err)

	got, err := a.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFetching, got.State)
}

func TestStore_CreateUndoesPartialWrite(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)
	// The active index holds the wrong type, so SADD fails inside EXEC.
	require.NoError(t, mr.Set("test:jobs:active", "corrupt"))

	job := domain.NewJob("https://youtu.be/abc", 360, time.Now().UTC())
	err := s.Create(ctx, job)
	require.Error(t, err)
	assert.False(t, mr.Exists("test:job:"+job.ID), "no job key without an index entry")

	_, err = s.Get(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Lease(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	held, err := s.LeaseHeld(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, s.AcquireLease(ctx, "job-1", "a", 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL("test:lease:job-1"))

	err = s.AcquireLease(ctx, "job-1", "b", 30*time.Second)
	assert.ErrorIs(t, err, port.ErrLeaseHeld)
	err = s.RenewLease(ctx, "job-1", "b", time.Minute)
	assert.ErrorIs(t, err, port.ErrLeaseLost)
	require.NoError(t, s.ReleaseLease(ctx, "job-1", "b"), "releasing a foreign lease is a no-op")

	held, err = s.LeaseHeld(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, s.RenewLease(ctx, "job-1", "a", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("test:lease:job-1"))
	require.NoError(t, s.AcquireLease(ctx, "job-1", "a", 2*time.Minute), "re-acquiring extends")
	assert.Equal(t, 2*time.Minute, mr.TTL("test:lease:job-1"))

	require.NoError(t, s.ReleaseLease(ctx, "job-1", "a"))
	assert.False(t, mr.Exists("test:lease:job-1"))
}

func TestStore_LeaseExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	require.NoError(t, s.AcquireLease(ctx, "job-1", "a", time.Second))
	mr.FastForward(2 * time.Second)

	held, err := s.LeaseHeld(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, held)
	assert.ErrorIs(t, s.RenewLease(ctx, "job-1", "a", time.Second), port.ErrLeaseLost)
	require.NoError(t, s.AcquireLease(ctx, "job-1", "b", time.Second), "an expired lease can be taken over")
}
