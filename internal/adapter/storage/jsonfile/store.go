// Package jsonfile keeps jobs in memory and snapshots them to a single JSON
// file after every change. Suited to single-process deployments that want
// restarts to survive without a database.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

const fileName = "jobs.json"

type Store struct {
	mu   sync.RWMutex
	path string
	jobs map[string]*domain.Job
}

func NewStore(dataDir string) (*Store, error) {
	store := &Store{
		path: filepath.Join(dataDir, fileName),
		jobs: make(map[string]*domain.Job),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	var jobs []*domain.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}

	for _, j := range jobs {
		s.jobs[j.ID] = j
	}

	return nil
}

// save must be called with the write lock held.
func (s *Store) save() error {
	tmpPath := s.path + ".tmp"

	jobs := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

func (s *Store) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	if err := s.save(); err != nil {
		delete(s.jobs, job.ID)
		return fmt.Errorf("persist jobs: %w", err)
	}
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

	current, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	next := current.Clone()
	if err := next.Apply(u, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.jobs[id] = next
	if err := s.save(); err != nil {
		s.jobs[id] = current
		return nil, fmt.Errorf("persist jobs: %w", err)
	}
	return next.Clone(), nil
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
	if pruned == 0 {
		return 0, nil
	}

	return pruned, s.save()
}

var (
	_ port.JobStore     = (*Store)(nil)
	_ port.ActiveLister = (*Store)(nil)
	_ port.Pruner       = (*Store)(nil)
)
