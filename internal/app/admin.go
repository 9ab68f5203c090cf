package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

const (
	adminReadHeaderTimeout = 5 * time.Second
	adminShutdownTimeout   = 5 * time.Second
	goroutineThreshold     = 10000
)

// AdminHandler returns the admin mux: /live, /ready, /metrics and /units.
// Check results are also exported as Prometheus gauges, so the handler is
// built once per host.
func (h *Host) AdminHandler() http.Handler {
	h.adminOnce.Do(func() {
		h.admin = newAdminHandler(h)
	})
	return h.admin
}

func newAdminHandler(h *Host) http.Handler {
	health := healthcheck.NewMetricsHandler(h.metrics.Registry(), "pluginhost")
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
	health.AddReadinessCheck("plugins-enabled", h.Ready)

	mux := http.NewServeMux()
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/units", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(h.Snapshot()); err != nil {
			h.logger.Warn(r.Context(), "encoding units snapshot failed", ports.Err(err))
		}
	})
	return mux
}

// AdminServer serves the admin handler.
type AdminServer struct {
	addr       string
	httpServer *http.Server
	logger     ports.Logger
}

// NewAdminServer creates an admin server for h listening on addr.
func NewAdminServer(h *Host, addr string) *AdminServer {
	return &AdminServer{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h.AdminHandler(),
			ReadHeaderTimeout: adminReadHeaderTimeout,
		},
		logger: h.logger,
	}
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *AdminServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context ends.
func (s *AdminServer) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	s.logger.Info(ctx, "admin listening", ports.F("addr", ln.Addr().String()))
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
