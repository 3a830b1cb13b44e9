// Package server is the HTTP front-end. It maps REST calls onto the agent
// facade; no dispatch logic lives here.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seawingai/ai-marketing-agent/internal/agent"
	"github.com/seawingai/ai-marketing-agent/internal/schedule"
	"github.com/seawingai/ai-marketing-agent/internal/storage"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

type Config struct {
	Addr string

	Metrics bool
	Pprof   bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// HistoryLimit is the default page size for GET /history.
	HistoryLimit int
}

type Server struct {
	cfg Config
	log logx.Logger

	agent *agent.Agent
	sched *schedule.Service // nil when scheduling is disabled
	store storage.Store     // nil when storage is disabled

	srv *http.Server
}

func New(cfg Config, ag *agent.Agent, sched *schedule.Service, store storage.Store, metricsReg *prometheus.Registry, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}

	s := &Server{cfg: cfg, log: log, agent: ag, sched: sched, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("POST /publish/{target}", s.handlePublishToTarget)
	mux.HandleFunc("POST /validate", s.handleValidate)

	mux.HandleFunc("GET /targets", s.handleListTargets)
	mux.HandleFunc("GET /targets/kinds", s.handleListKinds)
	mux.HandleFunc("PUT /targets/{name}", s.handleRegisterTarget)
	mux.HandleFunc("DELETE /targets/{name}", s.handleUnregisterTarget)

	mux.HandleFunc("GET /schedules", s.handleListSchedules)
	mux.HandleFunc("POST /schedules", s.handleAddSchedule)
	mux.HandleFunc("DELETE /schedules/{id}", s.handleRemoveSchedule)

	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if cfg.Metrics && metricsReg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	}
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.logRequests(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return s.srv.Close()
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
