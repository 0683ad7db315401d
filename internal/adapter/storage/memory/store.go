// Package memory is the default job store: a mutex-guarded map living only
// as long as the process.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, u domain.JobUpdate) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	// Apply leaves j untouched on error.
	if err := j.Apply(u, s.now()); err != nil {
		return nil, err
	}
	return j.Clone(), nil
}

func (s *Store) ListActive(_ context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*domain.Job
	for _, j := range s.jobs {
		if !j.IsTerminal() {
			active = append(active, j.Clone())
		}
	}
	return active, nil
}

func (s *Store) PruneTerminal(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, j := range s.jobs {
		if j.IsTerminal() && j.UpdatedAt.Before(before) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

var (
	_ port.JobStore     = (*Store)(nil)
	_ port.ActiveLister = (*Store)(nil)
	_ port.Pruner       = (*Store)(nil)
)
