// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/types"
)

// ComputeHandler exposes the stateless featurization and fusion steps.
type ComputeHandler struct {
	deps ComputeDependencies
}

// NewComputeHandler creates a new compute handler.
func NewComputeHandler(deps ComputeDependencies) *ComputeHandler {
	return &ComputeHandler{deps: deps}
}

// HandleFeatures handles POST /features/interaction requests.
func (h *ComputeHandler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_features"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var batch interaction.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := batch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	features, err := h.deps.Features(r.Context(), batch)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, features)
}

// HandleFuse handles POST /fusion/compute requests.
func (h *ComputeHandler) HandleFuse(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_fusion"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.FuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Fuse(r.Context(), req))
}
