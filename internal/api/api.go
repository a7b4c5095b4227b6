// Package api serves the multi-user job API. Callers are identified by the X-User-ID header
// set by the gateway in front of the service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/prompts"
	"github.com/forPelevin/clipforge/internal/store"
	"github.com/forPelevin/clipforge/internal/types"
)

const (
	UserHeader   = "X-User-ID"
	defaultLimit = 100
	maxLimit     = 500
)

// JobStore is the part of *store.Store the API needs.
type JobStore interface {
	SubmitJob(ctx context.Context, ownerID int64, url string, opts types.JobOptions) (types.Job, error)
	GetJob(ctx context.Context, id int64) (types.Job, error)
	ListJobs(ctx context.Context, ownerID int64, skip, limit int) ([]types.Job, error)
	Ping(ctx context.Context) error
}

type Options struct {
	Presets prompts.Presets
	// AnyPrompt skips preset validation; the heuristic selector ignores prompts.
	AnyPrompt   bool
	CORSOrigins []string
	Logger      *slog.Logger
}

type Server struct {
	store  JobStore
	opts   Options
	logger *slog.Logger
}

func New(st JobStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: st, opts: opts, logger: logger}
}

// Handler returns the routed handler with CORS and panic recovery applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/jobs", s.createJob).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", s.listJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id:[0-9]+}", s.getJob).Methods(http.MethodGet)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", UserHeader, "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))
	return recovery(cors(r))
}

// Serve runs the HTTP server on addr until ctx is cancelled, then drains requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type createJobRequest struct {
	YoutubeURL string `json:"youtube_url"`
	Prompt     string `json:"prompt"`
	Context    string `json:"context"`
	Captions   bool   `json:"captions"`
	Show       bool   `json:"show"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req createJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.YoutubeURL = strings.TrimSpace(req.YoutubeURL)
	if _, err := pipeline.VideoID(req.YoutubeURL); err != nil {
		writeError(w, http.StatusBadRequest, "youtube_url: "+err.Error())
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		req.Prompt = prompts.DefaultKey
	}
	if err := prompts.CheckKey(req.Prompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.opts.AnyPrompt {
		if _, err := s.opts.Presets.Get(req.Prompt); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job, err := s.store.SubmitJob(r.Context(), owner, req.YoutubeURL, types.JobOptions{
		Prompt:       req.Prompt,
		ExtraContext: strings.TrimSpace(req.Context),
		Captions:     req.Captions,
		ShowMode:     req.Show,
	})
	if err != nil {
		s.logger.Error("submit job", "owner_id", owner, "error", err)
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}
	s.logger.Info("job queued", "job_id", job.ID, "owner_id", owner, "url", job.SourceURL)
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	skip, err := intParam(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	limit, err := intParam(q.Get("limit"), defaultLimit)
	if err != nil || limit < 1 || limit > maxLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}

	jobs, err := s.store.ListJobs(r.Context(), owner, skip, limit)
	if err != nil {
		s.logger.Error("list jobs", "owner_id", owner, "error", err)
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && job.OwnerID != owner) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// caller reads the owner id from UserHeader and writes 401 when it is missing or invalid.
func caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+UserHeader+" header")
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

type recoveryLogger struct{ logger *slog.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("handler panicked", "panic", v)
}
