// Package metrics exposes the dump's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (transport, ratelimit,
// pagination, sink) and registered via promauto on the default registry.
//
// Transport Metrics (pkg/transport):
//   - esdump_requests_total{endpoint, status} (Counter): Store requests by endpoint and HTTP status
//   - esdump_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - esdump_transport_errors_total{class} (Counter): Failures to complete an exchange
//
// Rate Gate Metrics (pkg/ratelimit):
//   - esdump_rate_gate_wait_seconds (Histogram): Time spent waiting for a request token
//   - esdump_rate_gate_throttles_total (Counter): Requests that had to wait
//
// Pagination Metrics (pkg/pagination):
//   - esdump_pages_total (Counter): Non-empty pages received
//   - esdump_slices_finished_total{state} (Counter): Slices by terminal state
//   - esdump_scroll_clear_failures_total (Counter): Scroll contexts left for the TTL to reap
//
// Output Metrics (pkg/sink):
//   - esdump_documents_written_total (Counter): Documents written
//   - esdump_bytes_written_total (Counter): NDJSON bytes written
//
// Example Prometheus Queries:
//
//	# Documents per second
//	rate(esdump_documents_written_total[1m])
//
//	# P95 scroll latency
//	histogram_quantile(0.95, rate(esdump_request_duration_seconds_bucket{endpoint="scroll"}[5m]))
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sternrassler/esdump/pkg/logging"
)

// Registry is the registry all esdump metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Handler returns the scrape handler for Registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics for the duration of a dump.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Serve starts listening on addr and serves /metrics in the background.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}

	logger := logging.NewLogger(logging.ComponentMetrics)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
