package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/sink"
)

// ExecutorFactory builds the executor a single slice owns.
type ExecutorFactory func(spec SliceSpec) Executor

// Config holds fetcher configuration.
type Config struct {
	// ClearScroll releases each slice's scroll context when it terminates.
	ClearScroll bool

	// Observer receives progress from every worker; nil disables reporting.
	Observer Observer
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{ClearScroll: true}
}

// Fetcher runs one worker per slice concurrently and joins them all.
type Fetcher struct {
	sink        sink.Sink
	newExecutor ExecutorFactory
	config      Config
	logger      zerolog.Logger
}

// NewFetcher creates a fetcher writing to s.
func NewFetcher(s sink.Sink, newExecutor ExecutorFactory, config Config) *Fetcher {
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	return &Fetcher{
		sink:        s,
		newExecutor: newExecutor,
		config:      config,
		logger:      logging.NewLogger(logging.ComponentPagination),
	}
}

// FetchAllSlices starts one goroutine per spec, waits for every one of them
// and returns their outcomes ordered by slice id. A failing slice never
// stops its siblings; there is exactly one outcome per spec.
func (f *Fetcher) FetchAllSlices(ctx context.Context, specs []SliceSpec) []Outcome {
	start := time.Now()
	f.logger.Info().Int("slices", len(specs)).Msg("Starting sliced scroll")

	results := make(chan Outcome, len(specs))

	var wg sync.WaitGroup
	for _, spec := range specs {
		wg.Add(1)
		go func(spec SliceSpec) {
			defer wg.Done()
			results <- f.runSlice(ctx, spec)
		}(spec)
	}
	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(specs))
	var documents int64
	failed := 0
	for o := range results {
		outcomes = append(outcomes, o)
		documents += o.Documents
		if !o.Success() {
			failed++
		}
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].SliceID < outcomes[j].SliceID })

	f.logger.Info().
		Int("slices", len(specs)).
		Int("failed", failed).
		Int64("documents", documents).
		Dur("duration", time.Since(start)).
		Msg("Sliced scroll complete")

	return outcomes
}

func (f *Fetcher) runSlice(ctx context.Context, spec SliceSpec) Outcome {
	out, err := f.sink.ForSlice(spec.SliceID)
	if err != nil {
		outcome := Outcome{SliceID: spec.SliceID, State: StateFailed, Err: fmt.Errorf("open output: %w", err)}
		slicesFinishedTotal.WithLabelValues(StateFailed.String()).Inc()
		f.config.Observer.SliceFinished(ctx, outcome)
		return outcome
	}

	exec := f.newExecutor(spec)
	if closer, ok := exec.(interface{ CloseIdleConnections() }); ok {
		defer closer.CloseIdleConnections()
	}

	w := NewWorker(spec, exec, out,
		WithObserver(f.config.Observer),
		WithClearScroll(f.config.ClearScroll),
	)
	return w.Run(ctx)
}
