package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	readyCheckTimeout = 3 * time.Second

	statusOK = "ok"
)

// ReadinessChecker reports whether a dependency can serve a run.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Check is a named readiness probe.
type Check struct {
	Name    string
	Checker ReadinessChecker
}

// Server exposes /healthz, /readyz and /metrics for scheduler mode.
type Server struct {
	checks []Check
	port   int
	logger *zerolog.Logger
}

func NewServer(port int, logger *zerolog.Logger, checks ...Check) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Server{
		checks: checks,
		port:   port,
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// handleReady runs every check and answers 503 if any fails. The body maps
// check names to "ok" or the failure message.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	code := http.StatusOK
	results := make(map[string]string, len(s.checks))

	for _, c := range s.checks {
		if err := c.Checker.Ready(ctx); err != nil {
			code = http.StatusServiceUnavailable
			results[c.Name] = err.Error()

			continue
		}

		results[c.Name] = statusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(results); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write readiness response")
	}
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		//nolint:errcheck,contextcheck // best-effort shutdown on a fresh context
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("health server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}
