// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/neurobloom/internal/domain/types"
)

const defaultRecentLimit = 20

// RecentDependencies defines the interface for session listings.
type RecentDependencies interface {
	Recent(ctx context.Context, n int) ([]types.SessionSummary, error)
}

// RecentHandler handles session listing requests.
type RecentHandler struct {
	deps     RecentDependencies
	maxLimit int
}

// NewRecentHandler creates a new listing handler.
func NewRecentHandler(deps RecentDependencies, maxLimit int) *RecentHandler {
	return &RecentHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetRecent handles GET /sessions?limit=N requests. limit defaults to 20.
func (h *RecentHandler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sessions"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := min(defaultRecentLimit, h.maxLimit)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	sessions, err := h.deps.Recent(r.Context(), n)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}
