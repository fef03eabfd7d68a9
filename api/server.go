// Package api exposes the notification pipeline over HTTP: unified sends,
// notification listing and read-state management, interaction responses,
// queue ingestion and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/hub"
	"github.com/kart-io/alerthub/interactions"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/queue"
	"github.com/kart-io/alerthub/service"
	"github.com/kart-io/alerthub/store"
	"github.com/kart-io/alerthub/unified"
)

// Config for the HTTP server
type Config struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	// MaxBodyBytes bounds request bodies (default 1MB)
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// Response is the uniform JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server serves the notification API
type Server struct {
	config       Config
	service      *service.Service
	hub          *hub.Hub
	facade       *unified.Service
	interactions *interactions.Registry
	queue        queue.Queue
	logger       logger.Interface

	httpServer *http.Server
}

// Options wires the server. Queue is optional; without it the enqueue
// endpoint responds 503.
type Options struct {
	Config       Config
	Service      *service.Service
	Hub          *hub.Hub
	Facade       *unified.Service
	Interactions *interactions.Registry
	Queue        queue.Queue
	Logger       logger.Interface
}

// New creates the API server
func New(opts Options) (*Server, error) {
	if opts.Service == nil || opts.Hub == nil || opts.Facade == nil || opts.Interactions == nil {
		return nil, errors.ErrMissingWiring
	}
	cfg := opts.Config
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		config:       cfg,
		service:      opts.Service,
		hub:          opts.Hub,
		facade:       opts.Facade,
		interactions: opts.Interactions,
		queue:        opts.Queue,
		logger:       opts.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/send", s.handleSend)
	mux.HandleFunc("POST /api/v1/notifications", s.handleProcess)
	mux.HandleFunc("POST /api/v1/notifications/batch", s.handleProcessBatch)
	mux.HandleFunc("POST /api/v1/notifications/enqueue", s.handleEnqueue)
	mux.HandleFunc("GET /api/v1/notifications", s.handleList)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", s.handleMarkRead)
	mux.HandleFunc("POST /api/v1/notifications/read-all", s.handleMarkAllRead)
	mux.HandleFunc("DELETE /api/v1/notifications/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/v1/interactions/{user}", s.handleListInteractions)
	mux.HandleFunc("POST /api/v1/interactions/{id}/respond", s.handleRespond)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	return http.MaxBytesHandler(mux, s.config.MaxBodyBytes)
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "api server listening", "addr", s.config.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req unified.Request
	if !s.decode(w, r, &req) {
		return
	}

	result := s.facade.Send(r.Context(), req)
	if result.Err != nil {
		s.writeError(w, statusFor(result.Err), result.Err)
		return
	}
	s.writeJSON(w, http.StatusCreated, Response{Success: true, Data: result})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var n core.Notification
	if !s.decode(w, r, &n) {
		return
	}

	persisted, err := s.hub.ProcessNotification(r.Context(), &n)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, Response{
		Success: persisted,
		Data:    map[string]string{"id": n.ID},
	})
}

func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	var batch []*core.Notification
	if !s.decode(w, r, &batch) {
		return
	}

	results, err := s.hub.ProcessNotificationBatch(r.Context(), batch)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: results})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.ErrQueueClosed)
		return
	}
	var n core.Notification
	if !s.decode(w, r, &n) {
		return
	}

	id, err := s.queue.Enqueue(r.Context(), &n)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data:    map[string]string{"message_id": id},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := &store.Filter{}
	q := r.URL.Query()
	if q.Get("unread") == "true" {
		filter.UnreadOnly = true
	}
	if t := q.Get("type"); t != "" {
		filter.Types = []core.Type{core.Type(t)}
	}
	if src := q.Get("source"); src != "" {
		filter.Sources = []string{src}
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", limit))
			return
		}
		filter.Limit = n
	}

	list, err := s.service.GetNotifications(r.Context(), filter)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: list})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkAsRead(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkAllAsRead(r.Context(), nil); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteNotification(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	var (
		list []*core.Interaction
		err  error
	)
	if r.URL.Query().Get("pending") == "true" {
		list, err = s.interactions.ListPendingForUser(r.Context(), user)
	} else {
		list, err = s.interactions.ListForUser(r.Context(), user)
	}
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: list})
}

type respondRequest struct {
	UserID string `json:"user_id"`
	Accept bool   `json:"accept"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !s.decode(w, r, &req) {
		return
	}

	result := s.facade.RespondToInteraction(r.Context(), r.PathValue("id"), req.UserID, req.Accept)
	if result.Err != nil {
		s.writeError(w, statusFor(result.Err), result.Err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: result})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"hub": s.hub.State().String(),
	}
	status := http.StatusOK
	if s.hub.State() != hub.StateRunning {
		status = http.StatusServiceUnavailable
	}
	if s.queue != nil {
		if err := s.queue.Health(r.Context()); err != nil {
			health["queue"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health["queue"] = "ok"
		}
	}
	s.writeJSON(w, status, Response{Success: status == http.StatusOK, Data: health})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn(context.Background(), "writing response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, Response{Success: false, Error: err.Error()})
}

// statusFor maps pipeline errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrInteractionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrNotRecipient):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrAlreadyResponded), errors.Is(err, errors.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrUnknownIntent), errors.Is(err, errors.ErrInvalidNotification),
		errors.Is(err, errors.ErrInvalidInteraction):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotRunning), errors.Is(err, errors.ErrNotInitialized),
		errors.Is(err, errors.ErrQueueClosed), errors.Is(err, errors.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
