// Package ops serves the operator endpoints: health, readiness, metrics and
// optional pprof.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// Config controls the ops HTTP server.
//
// Binding to a non-loopback address requires Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
	Metrics       bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const defaultAddr = "127.0.0.1:9090"

// Probes are the app hooks the endpoints read from. Nil fields are skipped.
type Probes struct {
	Ready   func() bool
	Status  func() any
	Metrics http.Handler
}

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	probes Probes

	ln       net.Listener
	srv      *http.Server
	sup      *supervisor.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, probes Probes, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, probes: probes, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr is the bound listener address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg and starts, stops or restarts the server as needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
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

// Start is idempotent. The server runs under a restart loop.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
			continue
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		s.sup = supervisor.New(ctx,
			supervisor.WithLogger(s.log),
			// ops endpoints never take the bot down
			supervisor.WithCancelOnError(false),
		)
		sup := s.sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce,
			supervisor.WithPublishFirstError(true),
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		)
		return
	}
}

func (s *Service) Stop(ctx context.Context) {
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
	srv, ln, sup := s.srv, s.ln, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		if ln != nil {
			_ = ln.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.ln, s.srv, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
		s.log.Info("ops server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
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
	if !cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("ops server refused to start: non-loopback addr requires token or allow_insecure",
			logx.String("addr", addr))
		return errors.New("ops server refused to start: insecure bind")
	}
	if cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("ops server running without token on non-loopback addr", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.log.Error("ops listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      s.Handler(cur),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""),
		logx.Bool("pprof", cur.Pprof),
		logx.Bool("metrics", cur.Metrics))

	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv, s.ln = nil, nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

// Handler builds the route tree for cfg. /healthz is always public.
func (s *Service) Handler(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(withAuth(cfg.Token))

		r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
			if s.probes.Ready != nil && !s.probes.Ready() {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ready"))
		})

		if s.probes.Status != nil {
			r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(s.probes.Status())
			})
		}

		if cfg.Metrics && s.probes.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.probes.Metrics)
		}

		if cfg.Pprof {
			r.Route("/debug/pprof", func(r chi.Router) {
				r.Get("/", hpprof.Index)
				r.Get("/cmdline", hpprof.Cmdline)
				r.Get("/profile", hpprof.Profile)
				r.Get("/symbol", hpprof.Symbol)
				r.Post("/symbol", hpprof.Symbol)
				r.Get("/trace", hpprof.Trace)
				r.Get("/{name}", hpprof.Index)
			})
		}
	})
	return r
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
