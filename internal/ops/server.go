package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/snipetrade/snipetrade/internal/telemetry"
)

// Deps are the observability sources the server reads from. Nil fields
// get fresh, empty instances so the endpoints always answer.
type Deps struct {
	Counters *telemetry.Counters
	Stages   *telemetry.StageTracker
	Health   *telemetry.Health
	Prom     *telemetry.PromMetrics
	Hub      *Hub
}

// Server is the read-only ops HTTP server.
type Server struct {
	router *mux.Router
	srv    *http.Server
	deps   Deps
	logger zerolog.Logger
}

// NewServer wires the ops routes on listen (host:port).
func NewServer(listen string, deps Deps, logger zerolog.Logger) *Server {
	if deps.Counters == nil {
		deps.Counters = telemetry.NewCounters()
	}
	if deps.Stages == nil {
		deps.Stages = telemetry.NewStageTracker()
	}
	if deps.Health == nil {
		deps.Health = telemetry.NewHealth(0)
	}
	if deps.Prom == nil {
		deps.Prom = telemetry.NewPromMetrics()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: logger.With().Str("component", "ops").Logger(),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.deps.Prom.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/telemetry", s.handleTelemetry).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/status", s.deps.Hub.ServeWS).Methods(http.MethodGet)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// Hub exposes the status fan-out so the executor sink can be attached.
func (s *Server) Hub() *Hub { return s.deps.Hub }

// Addr reports the configured listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Run serves until ctx is canceled, then shuts down gracefully. The
// websocket write timeout bounds how long shutdown can take.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.srv.Addr).Msg("ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.deps.Hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info().Msg("ops server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.deps.Health.Snapshot())
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	stages := make(map[string]telemetry.StageMetrics)
	for stage, m := range s.deps.Stages.Metrics() {
		stages[string(stage)] = m
	}
	s.writeJSON(w, map[string]interface{}{
		"counters": s.deps.Counters.Snapshot(),
		"stages":   stages,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}
