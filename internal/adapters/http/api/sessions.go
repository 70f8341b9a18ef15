// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/okian/neurobloom/internal/domain/types"
)

// SessionDependencies defines the interface for session submission.
type SessionDependencies interface {
	Submit(ctx context.Context, req types.SubmitRequest) (types.SubmitResponse, error)
}

// SessionsHandler handles session submission requests.
type SessionsHandler struct {
	deps     SessionDependencies
	localDir string
}

// NewSessionsHandler creates a new sessions handler. Server-local video
// paths are accepted only inside localDir; an empty localDir rejects them.
func NewSessionsHandler(deps SessionDependencies, localDir string) *SessionsHandler {
	return &SessionsHandler{deps: deps, localDir: localDir}
}

// HandlePostSession handles POST /sessions requests.
func (h *SessionsHandler) HandlePostSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validateSubmit(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	source, err := resolveSource(strings.TrimSpace(req.VideoURL), h.localDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.VideoURL = source

	resp, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	if resp.Duplicate {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func validateSubmit(req types.SubmitRequest) error {
	src := strings.TrimSpace(req.VideoURL)
	if src == "" {
		return errors.New("missing video_url")
	}
	if strings.Contains(req.SessionID, "/") {
		return errors.New("session_id must not contain '/'")
	}
	if req.Interaction != nil {
		if err := req.Interaction.Validate(); err != nil {
			return err
		}
	}
	return nil
}

var (
	errVideoScheme   = errors.New("video_url must be an http(s) URL or a server-local path")
	errLocalDisabled = errors.New("server-local video paths are disabled")
	errOutsideDir    = errors.New("video_url is outside the local video directory")
)

// resolveSource checks a remote URL's scheme, or confines a local path to
// localDir and returns it absolute.
func resolveSource(src, localDir string) (string, error) {
	if strings.Contains(src, "://") {
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", errVideoScheme
		}
		return src, nil
	}
	if localDir == "" {
		return "", errLocalDisabled
	}
	root, err := filepath.Abs(localDir)
	if err != nil {
		return "", err
	}
	p := src
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideDir
	}
	return p, nil
}
