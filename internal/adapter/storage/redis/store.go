// Package redis stores jobs in Redis so several transcriber processes can
// share one view of job state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

const maxUpdateAttempts = 16

var ErrContention = errors.New("job update kept conflicting")

type Options struct {
	Addr   string
	Prefix string
	// Retention is applied as a TTL to a job key once it turns terminal.
	// Zero keeps terminal jobs forever.
	Retention time.Duration
}

type Store struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewStore(opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.Addr})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewStoreWithClient(client, opts), nil
}

func NewStoreWithClient(client *redis.Client, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "transcriber"
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		retention: opts.Retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) jobKey(id string) string {
	return s.prefix + ":job:" + id
}

func (s *Store) activeKey() string {
	return s.prefix + ":jobs:active"
}

func (s *Store) leaseKey(id string) string {
	return s.prefix + ":lease:" + id
}

// Create writes the job key and its active index entry in one MULTI block.
// EXEC does not roll back on a failed command, so a partial write is undone.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	key := s.jobKey(job.ID)
	c := s.client.WithContext(ctx)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, job.ID)
		}
		_, err = tx.TxPipelined(func(pipe redis.Pipeliner) error {
			pipe.Set(key, data, 0)
			if !job.IsTerminal() {
				pipe.SAdd(s.activeKey(), job.ID)
			}
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			_ = c.Del(key).Err()
		}
		return err
	}

	err = c.Watch(txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone wrote the key between WATCH and EXEC.
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, job.ID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateID) {
			return err
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func decodeJob(data []byte) (*domain.Job, error) {
	var j domain.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	data, err := s.client.WithContext(ctx).Get(s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return decodeJob(data)
}

// Update merges u optimistically: the job key is WATCHed and the write is
// retried when another writer got in between.
func (s *Store) Update(ctx context.Context, id string, u domain.JobUpdate) (*domain.Job, error) {
	key := s.jobKey(id)
	c := s.client.WithContext(ctx)

	var updated *domain.Job
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		job, err := decodeJob(data)
		if err != nil {
			return err
		}
		if err := job.Apply(u, s.now()); err != nil {
			return err
		}
		out, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(func(pipe redis.Pipeliner) error {
			if job.IsTerminal() {
				pipe.Set(key, out, s.retention)
				pipe.SRem(s.activeKey(), id)
			} else {
				pipe.Set(key, out, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = job
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.Watch(txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrJobTerminal) ||
				errors.Is(err, domain.ErrInvalidTransition) {
				return nil, err
			}
			return nil, fmt.Errorf("update job: %w", err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrContention, id)
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Job, error) {
	c := s.client.WithContext(ctx)
	ids, err := c.SMembers(s.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := c.MGet(keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load active jobs: %w", err)
	}

	var jobs []*domain.Job
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Key vanished; drop the stale index entry.
			_ = c.SRem(s.activeKey(), ids[i]).Err()
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, err
		}
		if !job.IsTerminal() {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// AcquireLease claims id for owner. Acquiring a lease owner already holds
// extends it.
func (s *Store) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) error {
	ok, err := s.client.WithContext(ctx).SetNX(s.leaseKey(id), owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.RenewLease(ctx, id, owner, ttl); err != nil {
		if errors.Is(err, port.ErrLeaseLost) {
			return fmt.Errorf("%w: %s", port.ErrLeaseHeld, id)
		}
		return err
	}
	return nil
}

func (s *Store) RenewLease(ctx context.Context, id, owner string, ttl time.Duration) error {
	return s.withLease(ctx, id, owner, func(pipe redis.Pipeliner, key string) {
		pipe.PExpire(key, ttl)
	})
}

func (s *Store) ReleaseLease(ctx context.Context, id, owner string) error {
	err := s.withLease(ctx, id, owner, func(pipe redis.Pipeliner, key string) {
		pipe.Del(key)
	})
	if errors.Is(err, port.ErrLeaseLost) {
		return nil
	}
	return err
}

func (s *Store) LeaseHeld(ctx context.Context, id string) (bool, error) {
	n, err := s.client.WithContext(ctx).Exists(s.leaseKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check lease: %w", err)
	}
	return n > 0, nil
}

// withLease runs fn in a transaction that only commits while owner still
// holds the lease of id.
func (s *Store) withLease(ctx context.Context, id, owner string, fn func(redis.Pipeliner, string)) error {
	key := s.leaseKey(id)
	c := s.client.WithContext(ctx)
	txf := func(tx *redis.Tx) error {
		holder, err := tx.Get(key).Result()
		if errors.Is(err, redis.Nil) || (err == nil && holder != owner) {
			return fmt.Errorf("%w: %s", port.ErrLeaseLost, id)
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(func(pipe redis.Pipeliner) error {
			fn(pipe, key)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := c.Watch(txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, port.ErrLeaseLost) {
			return fmt.Errorf("lease %s: %w", id, err)
		}
		return err
	}
	return fmt.Errorf("%w: lease %s", ErrContention, id)
}

var (
	_ port.Leaser       = (*Store)(nil)
	_ port.JobStore     = (*Store)(nil)
	_ port.ActiveLister = (*Store)(nil)
)
