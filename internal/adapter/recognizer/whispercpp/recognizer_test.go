package whispercpp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/command"
	"github.com/bnema/transcriber/internal/infrastructure/command/commandtest"
)

func TestNewRecognizer_RequiresModel(t *testing.T) {
	_, err := NewRecognizer(Options{}, nil)
	assert.ErrorIs(t, err, ErrModelRequired)
}

func TestRecognizer_Transcribe(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")

	runner := &commandtest.Runner{Fn: func(_ context.Context, _ string, args []string) (command.Result, error) {
		out := commandtest.ArgAfter(args, "-of") + ".txt"
		return command.Result{}, os.WriteFile(out, []byte(" hello world\n"), 0o644)
	}}
	r, err := NewRecognizer(Options{Model: "/models/ggml-base.bin", Language: "pt"}, runner)
	require.NoError(t, err)

	text, err := r.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, " hello world\n", text)

	call := runner.Calls()[0]
	assert.Equal(t, "whisper-cli", call.Name)
	assert.Equal(t, "/models/ggml-base.bin", commandtest.ArgAfter(call.Args, "-m"))
	assert.Equal(t, audio, commandtest.ArgAfter(call.Args, "-f"))
	assert.Equal(t, "pt", commandtest.ArgAfter(call.Args, "-l"))
	assert.Equal(t, filepath.Join(dir, "audio"), commandtest.ArgAfter(call.Args, "-of"))
}

func TestRecognizer_Transcribe_FallsBackToStdout(t *testing.T) {
	runner := &commandtest.Runner{Fn: func(context.Context, string, []string) (command.Result, error) {
		return command.Result{Stdout: "from stdout"}, nil
	}}
	r, err := NewRecognizer(Options{Model: "m"}, runner)
	require.NoError(t, err)

	text, err := r.Transcribe(context.Background(), filepath.Join(t.TempDir(), "audio.wav"))
	require.NoError(t, err)
	assert.Equal(t, "from stdout", text)
}

func TestRecognizer_Transcribe_Failure(t *testing.T) {
	runner := &commandtest.Runner{Fn: func(context.Context, string, []string) (command.Result, error) {
		return command.Result{ExitCode: 1}, errors.New("failed to load model")
	}}
	r, err := NewRecognizer(Options{Model: "m"}, runner)
	require.NoError(t, err)

	_, err = r.Transcribe(context.Background(), filepath.Join(t.TempDir(), "audio.wav"))
	assert.ErrorIs(t, err, domain.ErrRecognition)
}
