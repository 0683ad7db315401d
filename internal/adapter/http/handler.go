package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bnema/transcriber/internal/adapter/http/ratelimit"
	"github.com/bnema/transcriber/internal/adapter/http/templates"
	"github.com/bnema/transcriber/internal/domain"
	"github.com/bnema/transcriber/internal/infrastructure/logger"
	"github.com/bnema/transcriber/internal/service"
)

const maxSubmitBody = 64 << 10

// JobService is the part of the orchestrator the gateway drives.
type JobService interface {
	Submit(ctx context.Context, sourceURL string, quality int) (string, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	Cancel(ctx context.Context, id string) error
}

type Handlers struct {
	jobs           JobService
	limiter        *ratelimit.SubmitLimiter
	defaultQuality int
}

func NewHandlers(jobs JobService, limiter *ratelimit.SubmitLimiter, defaultQuality int) *Handlers {
	return &Handlers{
		jobs:           jobs,
		limiter:        limiter,
		defaultQuality: defaultQuality,
	}
}

type submitRequest struct {
	URL        string `json:"url"`
	YoutubeURL string `json:"youtube_url"`
	Quality    int    `json:"quality"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handlers) Index() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.Index(h.defaultQuality).Render(r.Context(), w); err != nil {
			logger.L().Error("render index", zap.Error(err))
		}
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Submit accepts a JSON body or a form post carrying url (or youtube_url)
// and an optional quality ceiling.
func (h *Handlers) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil {
			if ok, wait := h.limiter.Allow(clientID(r)); !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many submissions, retry later")
				return
			}
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBody)
		req, err := decodeSubmit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		sourceURL := req.URL
		if strings.TrimSpace(sourceURL) == "" {
			sourceURL = req.YoutubeURL
		}

		id, err := h.jobs.Submit(r.Context(), sourceURL, req.Quality)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, submitResponse{JobID: id})
		case errors.Is(err, domain.ErrMissingURL):
			writeError(w, http.StatusBadRequest, "missing_url", err.Error())
		case errors.Is(err, domain.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid_url", err.Error())
		case errors.Is(err, service.ErrPoolClosed):
			writeError(w, http.StatusServiceUnavailable, "unavailable", "server is shutting down")
		default:
			logger.L().Error("submit failed", logger.Input("source_url", sourceURL), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "could not create job")
		}
	}
}

func decodeSubmit(r *http.Request) (submitRequest, error) {
	var req submitRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, errors.New("malformed json body")
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxSubmitBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, errors.New("malformed form body")
	}
	req.URL = r.FormValue("url")
	req.YoutubeURL = r.FormValue("youtube_url")
	if q := strings.TrimSpace(r.FormValue("quality")); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return req, errors.New("quality must be a positive integer")
		}
		req.Quality = n
	}
	return req, nil
}

func (h *Handlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "job not found")
				return
			}
			logger.L().Error("get job failed", logger.Input("job_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "could not read job")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// Cancel requests cooperative cancellation. The job turns failed with kind
// canceled once its current stage notices.
func (h *Handlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := h.jobs.Cancel(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "canceling"})
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrJobTerminal):
			writeError(w, http.StatusConflict, "job_terminal", err.Error())
		case errors.Is(err, service.ErrNotRunning):
			writeError(w, http.StatusConflict, "not_running", err.Error())
		default:
			logger.L().Error("cancel job failed", logger.Input("job_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "could not cancel job")
		}
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
