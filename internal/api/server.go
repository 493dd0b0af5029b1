package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"pingflow/internal/domain"
	"pingflow/internal/scheduler"
	"pingflow/internal/store"
	"pingflow/internal/tasks"
)

const (
	HeaderOwner      = "X-Owner-ID"
	HeaderCronSecret = "X-Cron-Secret"
)

// Runner is the part of the scheduler the HTTP layer drives.
type Runner interface {
	RunCycle(ctx context.Context) (scheduler.Report, error)
	RunTask(ctx context.Context, t domain.Task) scheduler.TaskResult
}

type Config struct {
	Tasks      *tasks.Service
	Runner     Runner
	CronSecret string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Debug    bool
}

type Server struct {
	r          *chi.Mux
	tasks      *tasks.Service
	runner     Runner
	cronSecret string
}

func NewServer(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, tasks: cfg.Tasks, runner: cfg.Runner, cronSecret: cfg.CronSecret}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Trigger endpoint for the platform cron
	r.Get("/api/cron", s.cron)
	r.Post("/api/cron", s.cron)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Use(requireOwner)
		r.Get("/", s.listTasks)
		r.Post("/", s.createTask)
		r.Post("/batch", s.createBatch)
		r.Get("/{id}", s.getTask)
		r.Patch("/{id}", s.editTask)
		r.Delete("/{id}", s.deleteTask)
		r.Post("/{id}/toggle", s.toggleTask)
		r.Post("/{id}/run", s.runTask)
	})

	// Debug routes (pprof)
	if cfg.Debug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type cronResp struct {
	Message string `json:"message"`
	scheduler.Report
}

func (s *Server) cron(w http.ResponseWriter, r *http.Request) {
	if !s.cronAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResp{Error: "unauthorized"})
		return
	}
	// The cycle must finish its write-backs even if the caller hangs up.
	report, err := s.runner.RunCycle(context.WithoutCancel(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("cron cycle failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "cron job failed", Message: err.Error()})
		return
	}
	if report.Results == nil {
		report.Results = []scheduler.TaskResult{}
	}
	writeJSON(w, http.StatusOK, cronResp{Message: "cron job completed", Report: report})
}

// cronAuthorized accepts "Authorization: Bearer <secret>" or the
// X-Cron-Secret header. With no secret configured nothing is accepted.
func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.cronSecret == "" {
		return false
	}
	var presented string
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	} else {
		presented = r.Header.Get(HeaderCronSecret)
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.cronSecret)) == 1
}

type ownerKey struct{}

// requireOwner stands in for session auth: the caller's principal arrives
// in X-Owner-ID and scopes every store call.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(HeaderOwner))
		if owner == "" {
			writeJSON(w, http.StatusUnauthorized, errorResp{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	p, err := s.tasks.List(r.Context(), ownerFrom(r), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.Tasks == nil {
		p.Tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.NewTask
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid request body", Message: err.Error()})
		return
	}
	t, err := s.tasks.Create(r.Context(), ownerFrom(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req tasks.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid request body", Message: err.Error()})
		return
	}
	t, err := s.tasks.CreateBatch(r.Context(), ownerFrom(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) editTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.Edit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid request body", Message: err.Error()})
		return
	}
	t, err := s.tasks.Edit(r.Context(), ownerFrom(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.tasks.Delete(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, store.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Toggle(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.runner.RunTask(context.WithoutCancel(r.Context()), t))
}

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation failed", Message: verr.Error()})
	case errors.Is(err, tasks.ErrNoActiveMembers):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid batch", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "not found"})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error", Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
