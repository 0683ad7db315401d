package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/transcriber/internal/domain"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o644))
	return path
}

func TestNewRecognizer_RequiresURL(t *testing.T) {
	_, err := NewRecognizer(Options{}, nil)
	assert.ErrorIs(t, err, ErrURLRequired)
}

func TestRecognizer_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "audio.wav", hdr.Filename)
		assert.Equal(t, "RIFFdata", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"hello there"}`)
	}))
	defer srv.Close()

	r, err := NewRecognizer(Options{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "whisper-large", Language: "en"}, srv.Client())
	require.NoError(t, err)

	text, err := r.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestRecognizer_Transcribe_OmitsAutoLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["language"]
		assert.False(t, present)
		_, _ = io.WriteString(w, `{"text":""}`)
	}))
	defer srv.Close()

	r, err := NewRecognizer(Options{BaseURL: srv.URL, Language: "auto"}, srv.Client())
	require.NoError(t, err)

	text, err := r.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestRecognizer_Transcribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"audio too short"}}`)
	}))
	defer srv.Close()

	r, err := NewRecognizer(Options{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	t.Run("api error", func(t *testing.T) {
		_, err := r.Transcribe(context.Background(), writeAudio(t))
		assert.ErrorIs(t, err, domain.ErrRecognition)
		assert.Contains(t, err.Error(), "audio too short")
	})

	t.Run("missing audio", func(t *testing.T) {
		_, err := r.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
		assert.ErrorIs(t, err, domain.ErrRecognition)
	})
}
