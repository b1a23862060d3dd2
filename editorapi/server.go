package editorapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/ggolani/streamline/editor"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// Server exposes a Manager over HTTP. Every mutation runs on the manager's
// command queue; redraws and notifications are pushed over the websocket.
type Server struct {
	router     *mux.Router
	manager    *editor.Manager
	controller *editor.Controller
	hub        *Hub
	validator  *Validator
	limiter    *rate.Limiter
	shuffle    []topology.ShuffleOption
	logger     *slog.Logger
	timeout    time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRateLimit limits API requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithShuffleOptions sets the stream groupings offered by forms
func WithShuffleOptions(opts []topology.ShuffleOption) Option {
	return func(s *Server) {
		s.shuffle = opts
	}
}

// WithCommandTimeout bounds how long a request waits for its command
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates the API server. The manager's notifier should include
// hub so notifications reach the clients.
func NewServer(manager *editor.Manager, hub *Hub, opts ...Option) (*Server, error) {
	if manager == nil || hub == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "manager and hub required")
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    mux.NewRouter(),
		manager:   manager,
		hub:       hub,
		validator: validator,
		limiter:   rate.NewLimiter(rate.Limit(50), 20),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "editorapi")

	s.controller = editor.NewController(manager,
		editor.WithOpener(hub),
		editor.WithShuffleOptions(s.shuffle),
		editor.WithRefresh(hub.Refresh()),
	)
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Controller returns the pointer controller driven by /api/release
func (s *Server) Controller() *editor.Controller {
	return s.controller
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/ws", s.hub).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimit)

	api.HandleFunc("/graph", s.handleGraph).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	api.HandleFunc("/nodes", s.handleCreateNodes).Methods("POST")
	api.HandleFunc("/nodes/{id:[0-9]+}", s.handleDeleteNode).Methods("DELETE")
	api.HandleFunc("/nodes/{id:[0-9]+}/position", s.handleMoveNode).Methods("PUT")
	api.HandleFunc("/nodes/{id:[0-9]+}/parallelism", s.handleParallelism).Methods("PUT")
	api.HandleFunc("/nodes/{id:[0-9]+}/form", s.handleForm).Methods("GET")

	api.HandleFunc("/edges", s.handleCreateEdge).Methods("POST")
	api.HandleFunc("/edges/{id:[0-9]+}", s.handleDeleteEdge).Methods("DELETE")
	api.HandleFunc("/edges/{id:[0-9]+}/details", s.handleEdgeDetails).Methods("GET")
	api.HandleFunc("/edges/{id:[0-9]+}/select", s.handleSelectEdge).Methods("POST")

	api.HandleFunc("/release", s.handleRelease).Methods("POST")
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.writeJSONError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// run submits cmd to the command queue and waits for it. A request that
// goes away does not cancel a submitted command.
func (s *Server) run(r *http.Request, name string, cmd editor.Command) error {
	done, err := s.manager.Submit(name, cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Server", name, "wait for command")
	}
}

// statusFor maps an error to an HTTP status by class
func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrQueueFull),
		errors.Is(err, editor.ErrQueueStopped),
		errors.Is(err, editor.ErrQueueNotStarted):
		return http.StatusServiceUnavailable
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidData):
		return http.StatusBadRequest
	case errors.IsInvalid(err):
		return http.StatusUnprocessableEntity
	case errors.IsFatal(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", status, "error", err)
	}
	s.writeJSONError(w, errors.UserMessage(err), status)
}

// writeJSON writes a JSON response and logs encoding errors
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes an error response in JSON format
func (s *Server) writeJSONError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
