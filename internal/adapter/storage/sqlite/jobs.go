package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

const jobColumns = `id, source_url, quality, state, message, result, summary, error_kind, error_detail, created_at, updated_at`

const (
	insertJobSQL = `INSERT INTO jobs (` + jobColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

	getJobSQL = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	updateJobSQL = `UPDATE jobs
SET state = ?, message = ?, result = ?, summary = ?, error_kind = ?, error_detail = ?, updated_at = ?
WHERE id = ?`

	listActiveSQL = `SELECT ` + jobColumns + ` FROM jobs
WHERE state NOT IN (?, ?)
ORDER BY created_at`

	pruneTerminalSQL = `DELETE FROM jobs WHERE state IN (?, ?) AND updated_at < ?`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j                            domain.Job
		state, kind                  string
		result, summary, errorDetail sql.NullString
		created, updated             int64
	)
	err := row.Scan(&j.ID, &j.SourceURL, &j.Quality, &state, &j.Message,
		&result, &summary, &kind, &errorDetail, &created, &updated)
	if err != nil {
		return nil, err
	}
	j.State = domain.JobState(state)
	j.ErrorKind = domain.ErrorKind(kind)
	if result.Valid {
		j.Result = &result.String
	}
	if summary.Valid {
		j.Summary = &summary.String
	}
	if errorDetail.Valid {
		j.ErrorDetail = &errorDetail.String
	}
	j.CreatedAt = time.Unix(0, created).UTC()
	j.UpdatedAt = time.Unix(0, updated).UTC()
	return &j, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	res, err := s.db.ExecContext(ctx, insertJobSQL,
		job.ID, job.SourceURL, job.Quality, string(job.State), job.Message,
		nullString(job.Result), nullString(job.Summary), string(job.ErrorKind), nullString(job.ErrorDetail),
		job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateID, job.ID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, getJobSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update reads, merges and writes the job inside one transaction.
func (s *Store) Update(ctx context.Context, id string, u domain.JobUpdate) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRowContext(ctx, getJobSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := job.Apply(u, time.Now().UTC()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, updateJobSQL,
		string(job.State), job.Message, nullString(job.Result), nullString(job.Summary),
		string(job.ErrorKind), nullString(job.ErrorDetail),
		job.UpdatedAt.UnixNano(), job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, listActiveSQL,
		string(domain.JobStateCompleted), string(domain.JobStateFailed))
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) PruneTerminal(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, pruneTerminalSQL,
		string(domain.JobStateCompleted), string(domain.JobStateFailed), before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var (
	_ port.JobStore     = (*Store)(nil)
	_ port.ActiveLister = (*Store)(nil)
	_ port.Pruner       = (*Store)(nil)
)
