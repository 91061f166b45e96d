package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/weft/internal/config"
	"github.com/kingrea/weft/internal/workflow"
	"github.com/kingrea/weft/internal/workflow/engine"
)

const (
	defaultMaxBodyBytes int64 = 1 << 20
	readTimeout               = 15 * time.Second
	writeTimeout              = 15 * time.Second
	idleTimeout               = 60 * time.Second
	shutdownGrace             = 2 * time.Second
)

// ErrDisabled is returned by Start when the bridge is switched off.
var ErrDisabled = errors.New("eventbridge: bridge disabled")

// Engine is the part of the build engine the bridge serves. *engine.Engine
// satisfies it.
type Engine interface {
	HandleFileEvent(path string, kind workflow.EventKind) bool
	Snapshot() engine.State
	Done() <-chan struct{}
}

// Server feeds posted file events into an engine and exposes its state. It
// stops serving when the engine stops.
type Server struct {
	cfg      config.BridgeConfig
	eng      Engine
	logger   Logger
	clock    func() time.Time
	gatherer prometheus.Gatherer
	maxBody  int64
	seen     *dedupe
	started  atomic.Int64

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	closed   chan struct{}
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaxBodyBytes caps the size of a posted event.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer prepares a bridge for eng using the bridge section of the
// workspace config.
func NewServer(cfg config.BridgeConfig, eng Engine, opts ...Option) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("eventbridge: engine is required")
	}
	s := &Server{
		cfg:     cfg,
		eng:     eng,
		logger:  nopLogger{},
		clock:   time.Now,
		maxBody: defaultMaxBodyBytes,
		seen:    newDedupe(defaultDedupeWindow),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start binds the listener and serves until Shutdown is called, ctx ends or
// the engine stops.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: already listening on %s", s.listener.Addr())
	}
	addr := s.cfg.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	closed := make(chan struct{})
	s.listener, s.server, s.closed = listener, server, closed
	s.started.Store(s.now().UnixNano())

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve: %v", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
		case <-s.eng.Done():
			s.logger.Printf("eventbridge: engine stopped, closing %s", listener.Addr())
		case <-closed:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	s.logger.Printf("eventbridge: listening on %s", listener.Addr())
	return nil
}

// Handler returns the bridge routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /events", s.handleEvents)
	mux.HandleFunc("GET /projects", s.handleProjects)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	if server == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.closed)
	s.listener, s.server = nil, nil
	s.mu.Unlock()
	return server.Shutdown(ctx)
}

// Addr returns the bound address, or "" when the bridge is not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the running bridge.
func (s *Server) URL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return "http://" + s.cfg.Address()
}

func (s *Server) now() time.Time {
	return s.clock().UTC()
}

func (s *Server) engineStopped() bool {
	select {
	case <-s.eng.Done():
		return true
	default:
		return false
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.eng.Snapshot()
	resp := healthResponse{
		Status:  "ok",
		Engine:  string(state.Status),
		RunID:   state.RunID,
		Version: ProtocolVersion,
	}
	if started := s.started.Load(); started != 0 {
		resp.UptimeSeconds = int64(s.now().Sub(time.Unix(0, started)).Seconds())
	}
	if s.engineStopped() {
		resp.Status = "stopped"
		resp.Engine = string(engine.EngineStatusStopped)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.engineStopped() {
		writeError(w, http.StatusServiceUnavailable, "engine stopped")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	evt.Normalize()
	if err := evt.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evt.StampServerTime(s.now())
	if s.seen.duplicate(evt.EventID) {
		writeJSON(w, http.StatusOK, eventResponse{Status: "duplicate", ServerTime: evt.ServerTime})
		return
	}
	kind, _ := evt.EventKind()
	relevant := s.eng.HandleFileEvent(evt.Path, kind)
	if relevant {
		s.logger.Printf("eventbridge: %s %s", kind, evt.Path)
	}
	writeJSON(w, http.StatusAccepted, eventResponse{Status: "accepted", Relevant: relevant, ServerTime: evt.ServerTime})
}

func (s *Server) handleProjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
