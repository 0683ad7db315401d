package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bnema/transcriber/internal/infrastructure/logger"
	"github.com/bnema/transcriber/internal/service"
)

const (
	eventProgress = "progress"
	eventDone     = "done"
	eventNotFound = "not_found"

	defaultKeepAlive = 15 * time.Second
)

// ProgressSource yields the update stream of one job. The channel closes
// after the terminal or not-found update, or when ctx is done.
type ProgressSource interface {
	Subscribe(ctx context.Context, id string) <-chan service.Update
}

type StreamHandler struct {
	progress  ProgressSource
	keepAlive time.Duration
}

func NewStreamHandler(progress ProgressSource, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &StreamHandler{progress: progress, keepAlive: keepAlive}
}

// eventName maps an update to its SSE event name.
func eventName(u service.Update) string {
	switch {
	case u.NotFound:
		return eventNotFound
	case u.Terminal:
		return eventDone
	default:
		return eventProgress
	}
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Events streams a job's progress as server-sent events. Non-terminal
// updates go out as "progress", the final one as "done" (or "not_found"
// for an unknown id), after which the response ends.
func (h *StreamHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		ctx := r.Context()
		updates := h.progress.Subscribe(ctx, id)

		keepAlive := time.NewTicker(h.keepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case u, ok := <-updates:
				if !ok {
					return
				}
				data, err := json.Marshal(u)
				if err != nil {
					logger.L().Error("encode progress update", zap.String("job_id", u.JobID), zap.Error(err))
					return
				}
				sseWrite(w, eventName(u), string(data))
				if u.Terminal {
					return
				}
			}
		}
	}
}
