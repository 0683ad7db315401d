package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/command"
	"github.com/bnema/transcriber/internal/infrastructure/command/commandtest"
)

const videoURL = "https://youtube.com/watch?v=abc123"

func TestFormatSelector(t *testing.T) {
	assert.Equal(t, "bestvideo[height<=360]+bestaudio/best[height<=360]", FormatSelector(360))
}

func TestFetcher_Probe(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		runErr  error
		want    time.Duration
		wantErr error
	}{
		{name: "duration reported", stdout: `{"id":"abc123","duration":754.5}` + "\n", want: 754500 * time.Millisecond},
		{name: "warnings before json", stdout: "WARNING: slow\n{\"duration\": 12}\n", want: 12 * time.Second},
		{name: "live stream without duration", stdout: `{"id":"live"}`, want: 0},
		{name: "garbage", stdout: "not json", wantErr: domain.ErrFetch},
		{name: "yt-dlp fails", runErr: errors.New("ERROR: Video unavailable"), wantErr: domain.ErrFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &commandtest.Runner{Fn: func(context.Context, string, []string) (command.Result, error) {
				return command.Result{Stdout: tt.stdout}, tt.runErr
			}}
			f := NewFetcher(Options{}, runner)

			got, err := f.Probe(context.Background(), videoURL)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			args := runner.Calls()[0].Args
			assert.Contains(t, args, "--dump-json")
			assert.Contains(t, args, "--skip-download")
			assert.Equal(t, videoURL, args[len(args)-1])
		})
	}
}

func TestFetcher_Fetch(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "media.webm")

	runner := &commandtest.Runner{Fn: func(context.Context, string, []string) (command.Result, error) {
		require.NoError(t, os.WriteFile(want, []byte("video"), 0o644))
		return command.Result{Stdout: want + "\n"}, nil
	}}
	f := NewFetcher(Options{Binary: "yt", CookiesFile: "/etc/cookies.txt", Retries: 3}, runner)

	got, err := f.Fetch(context.Background(), videoURL, 480, dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	call := runner.Calls()[0]
	assert.Equal(t, "yt", call.Name)
	assert.Equal(t, FormatSelector(480), commandtest.ArgAfter(call.Args, "-f"))
	assert.Equal(t, filepath.Join(dir, "media.%(ext)s"), commandtest.ArgAfter(call.Args, "-o"))
	assert.Equal(t, "/etc/cookies.txt", commandtest.ArgAfter(call.Args, "--cookies"))
	assert.Equal(t, "3", commandtest.ArgAfter(call.Args, "--retries"))
	assert.Contains(t, call.Args, "--no-playlist")
}

func TestFetcher_Fetch_FindsOutputWithoutPrintedPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "media.mp4.part"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "media.mp4"), []byte("v"), 0o644))

	f := NewFetcher(Options{}, &commandtest.Runner{})
	got, err := f.Fetch(context.Background(), videoURL, 360, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "media.mp4"), got)
}

func TestFetcher_Fetch_Errors(t *testing.T) {
	t.Run("process failure", func(t *testing.T) {
		f := NewFetcher(Options{}, &commandtest.Runner{Fn: func(context.Context, string, []string) (command.Result, error) {
			return command.Result{ExitCode: 1}, errors.New("yt-dlp exited with 1: ERROR: 403")
		}})
		_, err := f.Fetch(context.Background(), videoURL, 360, t.TempDir())
		assert.ErrorIs(t, err, domain.ErrFetch)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("nothing downloaded", func(t *testing.T) {
		f := NewFetcher(Options{}, &commandtest.Runner{})
		_, err := f.Fetch(context.Background(), videoURL, 360, t.TempDir())
		assert.ErrorIs(t, err, domain.ErrFetch)
	})

	t.Run("canceled is not a fetch error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := NewFetcher(Options{}, &commandtest.Runner{Fn: func(ctx context.Context, _ string, _ []string) (command.Result, error) {
			return command.Result{}, ctx.Err()
		}})
		_, err := f.Fetch(ctx, videoURL, 360, t.TempDir())
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrFetch)
	})
}
