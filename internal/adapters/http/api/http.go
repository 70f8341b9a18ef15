// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/neurobloom/internal/adapters/mq/queue"
	"github.com/okian/neurobloom/internal/adapters/repository"
	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/internal/domain/types"
)

// DefaultMaxLimit caps GET /sessions?limit when no limit is configured.
const DefaultMaxLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	ReportDependencies
	RecentDependencies
	ComputeDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	sessionHandler *SessionsHandler
	reportHandler  *ReportHandler
	recentHandler  *RecentHandler
	computeHandler *ComputeHandler
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxLimit int
	localDir string
}

// WithMaxLimit caps GET /sessions?limit.
func WithMaxLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithLocalVideoDir allows submissions to name video files under dir.
func WithLocalVideoDir(dir string) ServerOption {
	return func(c *serverConfig) {
		c.localDir = dir
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxLimit: DefaultMaxLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		sessionHandler: NewSessionsHandler(deps, cfg.localDir),
		reportHandler:  NewReportHandler(deps),
		recentHandler:  NewRecentHandler(deps, cfg.maxLimit),
		computeHandler: NewComputeHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessions, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.reportHandler.HandleGetReport, "session"))
	mux.HandleFunc("/features/interaction", MetricsMiddleware(s.computeHandler.HandleFeatures, "features"))
	mux.HandleFunc("/fusion/compute", MetricsMiddleware(s.computeHandler.HandleFuse, "fusion"))
}

// sessions routes /sessions by method.
func (s *Server) sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.sessionHandler.HandlePostSession(w, r)
	case http.MethodGet:
		s.recentHandler.HandleGetRecent(w, r)
	default:
		http.NotFound(w, r)
	}
}

// sessionResponse is the read shape of one session.
type sessionResponse struct {
	SessionID   string         `json:"session_id"`
	Status      model.Status   `json:"status"`
	Report      map[string]any `json:"report,omitempty"`
	Predictions any            `json:"predictions,omitempty"`
	Frames      int            `json:"frames"`
	Ticks       int            `json:"ticks"`
	Partial     bool           `json:"partial,omitempty"`
	SubmittedAt string         `json:"submitted_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
}

func newSessionResponse(rec model.Record) sessionResponse { //nolint:gocritic // hugeParam: read-only
	out := sessionResponse{
		SessionID: rec.SessionID,
		Status:    rec.Status,
		Report:    rec.Metrics(),
		Frames:    rec.Frames,
		Ticks:     rec.Ticks,
		Partial:   rec.Partial,
	}
	if len(rec.Predictions) > 0 {
		out.Predictions = rec.Predictions
	}
	if !rec.SubmittedAt.IsZero() {
		out.SubmittedAt = rec.SubmittedAt.UTC().Format(timeFormat)
	}
	if !rec.CompletedAt.IsZero() {
		out.CompletedAt = rec.CompletedAt.UTC().Format(timeFormat)
	}
	return out
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeUpstreamError translates service errors to HTTP statuses.
func writeUpstreamError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// ComputeDependencies are the stateless domain calls.
type ComputeDependencies interface {
	Features(ctx context.Context, batch interaction.Batch) (interaction.Features, error)
	Fuse(ctx context.Context, req types.FuseRequest) fusion.Snapshot
}
