package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "todoreminder/internal/runtime/supervisor"
	logx "todoreminder/pkg/logx"
)

const defaultAddr = "127.0.0.1:8080"

// Config controls the API listener.
type Config struct {
	Enabled bool
	Addr    string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RatePerSec limits requests per client IP; 0 disables limiting.
	RatePerSec float64
	Burst      int

	// Metrics serves GET /metrics when instrumentation is attached.
	Metrics bool
}

// Instrumentation records request metrics and serves them.
type Instrumentation interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type ServerOption func(*Server)

func WithInstrumentation(in Instrumentation) ServerOption {
	return func(s *Server) { s.inst = in }
}

// Server runs the API under its own supervisor so a failed listener restarts
// without taking the daemon down.
type Server struct {
	mu  sync.Mutex
	log logx.Logger
	cfg  Config
	api  *API
	inst Instrumentation

	ln       net.Listener
	srv      *http.Server
	sup      *rtsup.Supervisor
	stopDone chan struct{}
	ready    chan struct{}
}

func NewServer(cfg Config, api *API, log logx.Logger, opts ...ServerOption) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, api: api, log: log, ready: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Supervisor returns the server's supervisor, nil when not running.
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Addr is the bound listen address, empty until the listener is up.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Ready is closed the first time a listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Handler builds the full middleware chain for cfg.
func (s *Server) Handler(cfg Config) http.Handler {
	mux := s.api.Routes()
	if s.inst != nil && cfg.Metrics {
		mux.Handle("GET /metrics", s.inst.Handler())
	}
	var h http.Handler = mux
	if cfg.RatePerSec > 0 {
		h = withRateLimit(newClientLimiter(cfg.RatePerSec, cfg.Burst), h)
	}
	if s.inst != nil {
		h = s.inst.Middleware(h)
	}
	return withLogging(s.log, h)
}

// Reconfigure applies cfg and starts, stops or restarts the listener as needed.
// Safe to call during hot reload.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent. A stop in progress is waited out first.
func (s *Server) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return
			}
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		// The supervisor outlives the caller's ctx; Stop owns its lifetime.
		sup := rtsup.New(context.Background(), rtsup.WithLogger(s.log))
		s.sup = sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce,
			rtsup.WithPublishFirstError(true),
			rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
		return
	}
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv, sup := s.srv, s.sup
	grace := s.cfg.ShutdownTimeout
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), max(grace, time.Second))
			_ = srv.Shutdown(sctx)
			cancel()
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.ln, s.srv, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
		s.log.Info("http api stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	if !cur.Enabled {
		return context.Canceled
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", addr), logx.Any("err", err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      s.Handler(cur),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http api started", logx.String("addr", ln.Addr().String()), logx.Bool("rate_limited", cur.RatePerSec > 0))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
		s.ln = nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
