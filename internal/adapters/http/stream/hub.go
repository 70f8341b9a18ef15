// Package stream fans live session ticks and final reports out to websocket
// subscribers at GET /sessions/{id}/stream.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/neurobloom/internal/adapters/mq/worker"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 1024

	defaultBuffer = 64
)

// Records looks up stored sessions so late subscribers get the final report.
type Records interface {
	Report(ctx context.Context, id string) (model.Record, error)
}

// Hub keeps per-session subscriber sets. It implements worker.Publisher.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*client]struct{}

	upgrader websocket.Upgrader
	buffer   int
	records  Records
	logger   logger.Logger
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithBuffer sets the per-client outbound buffer. A client that falls this
// far behind is dropped.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithRecords lets subscribers to finished sessions receive the stored report.
func WithRecords(r Records) Option {
	return func(h *Hub) {
		h.records = r
	}
}

// WithCheckOrigin overrides the upgrader's origin policy.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithAllowedOrigins accepts upgrades from the listed browser origins as
// well as same-host and non-browser clients. An empty list keeps the
// upgrader's same-host default.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions: make(map[string]map[*client]struct{}),
		buffer:   defaultBuffer,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("stream")
	}
	return h
}

// Register attaches the stream route to mux.
func (h *Hub) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions/{id}/stream", h.HandleStream)
}

// Publish delivers msg to every subscriber of sessionID without blocking.
// A report message ends the session's stream.
func (h *Hub) Publish(sessionID string, msg worker.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), "encode stream message", logger.SessionID(sessionID), logger.Error(err))
		return
	}
	final := msg.Kind == worker.KindReport

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.sessions[sessionID] {
		select {
		case c.send <- data:
			metrics.RecordStreamMessage()
		default:
			h.dropLocked(sessionID, c)
			metrics.RecordStreamDropped()
			h.logger.Warn(context.Background(), "dropped slow stream client", logger.SessionID(sessionID))
		}
	}
	if final {
		for c := range h.sessions[sessionID] {
			h.dropLocked(sessionID, c)
		}
	}
}

// Subscribers returns the number of clients watching sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Clients returns the total number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

// HandleStream upgrades the request and streams the session's messages.
func (h *Hub) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug(r.Context(), "websocket upgrade failed", logger.SessionID(id), logger.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	h.add(id, c)
	h.finished(r.Context(), id, c)
	go c.writePump()
	c.readPump()
	h.remove(id, c)
}

// finished sends the stored report to c and ends its stream if the session
// is already terminal. c must already be subscribed so a report published
// during the lookup still reaches it.
func (h *Hub) finished(ctx context.Context, id string, c *client) {
	if h.records == nil {
		return
	}
	rec, err := h.records.Report(ctx, id)
	if err != nil || !rec.Status.Terminal() {
		return
	}
	data, err := json.Marshal(worker.Message{
		Kind:      worker.KindReport,
		SessionID: id,
		Report:    rec.Metrics(),
		Status:    rec.Status,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	if _, ok := h.sessions[id][c]; ok {
		select {
		case c.send <- data:
		default:
		}
		h.dropLocked(id, c)
	}
	h.mu.Unlock()
	metrics.UpdateStreamClients(h.Clients())
}

func (h *Hub) add(id string, c *client) {
	h.mu.Lock()
	set, ok := h.sessions[id]
	if !ok {
		set = make(map[*client]struct{})
		h.sessions[id] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.UpdateStreamClients(h.Clients())
}

func (h *Hub) remove(id string, c *client) {
	h.mu.Lock()
	h.dropLocked(id, c)
	h.mu.Unlock()
	metrics.UpdateStreamClients(h.Clients())
}

// dropLocked unsubscribes c and closes its queue. Callers hold h.mu.
func (h *Hub) dropLocked(id string, c *client) {
	set := h.sessions[id]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.sessions, id)
	}
}
