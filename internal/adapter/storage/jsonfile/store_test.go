package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/adapter/storage/storetest"
	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/port"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) port.JobStore {
		s, err := NewStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestNewStore(t *testing.T) {
	t.Run("creates empty store if file doesn't exist", func(t *testing.T) {
		store, err := NewStore(t.TempDir())

		assert.NoError(t, err)
		assert.NotNil(t, store)
		assert.Empty(t, store.jobs)
	})

	t.Run("loads existing data from file", func(t *testing.T) {
		tempDir := t.TempDir()
		now := time.Now().UTC()
		jobs := []*domain.Job{
			domain.NewJob("https://youtu.be/one", 360, now),
			domain.NewJob("https://youtu.be/two", 720, now),
		}
		data, _ := json.MarshalIndent(jobs, "", "  ")
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, "jobs.json"), data, 0600))

		store, err := NewStore(tempDir)

		require.NoError(t, err)
		assert.Len(t, store.jobs, 2)
		assert.Equal(t, 720, store.jobs[jobs[1].ID].Quality)
	})

	t.Run("returns error for invalid JSON", func(t *testing.T) {
		tempDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, "jobs.json"), []byte("invalid json"), 0600))

		store, err := NewStore(tempDir)

		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)

	job := domain.NewJob("https://youtu.be/abc", 360, time.Now().UTC())
	require.NoError(t, store.Create(ctx, job))
	_, err = store.Update(ctx, job.ID, domain.Fail(domain.ErrorKindFetch, "HTTP Error 403"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(tempDir, "jobs.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	reopened, err := NewStore(tempDir)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateFailed, got.State)
	assert.Equal(t, domain.ErrorKindFetch, got.ErrorKind)
}
