// Package ratelimit caps the request rate a dump imposes on the store.
//
// A single Gate is shared by every slice worker of a run, so the cap
// applies to the run as a whole rather than per slice.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	gateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esdump_rate_gate_wait_seconds",
		Help:    "Time requests spent waiting on the request rate gate",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	})

	gateThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esdump_rate_gate_throttles_total",
		Help: "Total number of requests delayed by the request rate gate",
	})
)

// throttleThreshold is the wait above which a request counts as throttled.
const throttleThreshold = time.Millisecond

// Gate is a goroutine-safe token bucket in front of store requests.
// A nil *Gate never blocks.
type Gate struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGate returns a gate admitting requestsPerSecond requests per second
// with a burst of one request per slice. A non-positive rate disables the
// gate and returns nil.
func NewGate(requestsPerSecond float64, burst int, logger zerolog.Logger) *Gate {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:  logger,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}

	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate gate: %w", err)
	}

	waited := time.Since(start)
	gateWaitSeconds.Observe(waited.Seconds())
	if waited > throttleThreshold {
		gateThrottlesTotal.Inc()
		g.logger.Debug().Dur("wait", waited).Msg("Request delayed by rate gate")
	}
	return nil
}

// Limit reports the configured rate, or 0 for a nil gate.
func (g *Gate) Limit() float64 {
	if g == nil {
		return 0
	}
	return float64(g.limiter.Limit())
}
