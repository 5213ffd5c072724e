package pagination

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/protocol"
	"github.com/Sternrassler/esdump/pkg/sink"
	"github.com/Sternrassler/esdump/pkg/transport"
)

var (
	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esdump_pages_total",
		Help: "Total non-empty pages received across all slices",
	})

	slicesFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esdump_slices_finished_total",
		Help: "Slices that reached a terminal state, by state",
	}, []string{"state"})

	scrollClearFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esdump_scroll_clear_failures_total",
		Help: "Scroll contexts that could not be released on the store",
	})
)

// Executor performs one store request. *transport.Client implements it.
type Executor interface {
	Execute(ctx context.Context, url string, body []byte) (*transport.Response, error)
	Do(ctx context.Context, method, url string, body []byte) (*transport.Response, error)
}

// Worker drives one slice from its initial search to the empty page that
// ends it. A Worker is single-use.
type Worker struct {
	spec        SliceSpec
	exec        Executor
	out         sink.SliceWriter
	observer    Observer
	clearScroll bool
	logger      zerolog.Logger

	state     State
	cursor    string
	documents int64
	pages     int
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithObserver reports progress to o.
func WithObserver(o Observer) WorkerOption {
	return func(w *Worker) { w.observer = o }
}

// WithClearScroll releases the scroll context on the store when the
// worker terminates.
func WithClearScroll(enabled bool) WorkerOption {
	return func(w *Worker) { w.clearScroll = enabled }
}

// NewWorker binds a slice spec to its executor and output stream.
func NewWorker(spec SliceSpec, exec Executor, out sink.SliceWriter, opts ...WorkerOption) *Worker {
	w := &Worker{
		spec:     spec,
		exec:     exec,
		out:      out,
		observer: NopObserver{},
		logger:   logging.WithSlice(logging.NewLogger(logging.ComponentPagination), spec.SliceID),
		state:    StateInit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the worker's current state.
func (w *Worker) State() State {
	return w.state
}

// Run executes the slice to completion and closes its output stream. It
// never returns early on behalf of other slices.
func (w *Worker) Run(ctx context.Context) Outcome {
	start := time.Now()
	w.logger.Debug().Int("slice_max", w.spec.SliceMax).Int("size", w.spec.PageSize).Msg("Slice started")

	err := w.paginate(ctx)
	if err != nil {
		w.state = StateFailed
	}

	if w.clearScroll && w.cursor != "" {
		w.release(ctx)
	}

	if cerr := w.out.Close(); cerr != nil && err == nil {
		w.state = StateFailed
		err = fmt.Errorf("close output: %w", cerr)
	}

	outcome := Outcome{
		SliceID:   w.spec.SliceID,
		State:     w.state,
		Err:       err,
		Documents: w.documents,
		Pages:     w.pages,
	}

	slicesFinishedTotal.WithLabelValues(w.state.String()).Inc()
	if err != nil {
		// The orchestrator reports failed slices on stderr itself.
		w.logger.Info().Err(err).Int64("documents", w.documents).Str("state", w.state.String()).Msg("Slice failed")
	} else {
		w.logger.Info().
			Int64("documents", w.documents).
			Int("pages", w.pages).
			Dur("duration", time.Since(start)).
			Msg("Slice complete")
	}

	w.observer.SliceFinished(ctx, outcome)
	return outcome
}

// paginate runs Init → Searching → Emitting → (Scrolling → Searching →
// Emitting)* until an empty page (Done) or the first error.
func (w *Worker) paginate(ctx context.Context) error {
	url := protocol.URL(w.spec.Host, protocol.SearchPath(w.spec.Index))
	body := protocol.BuildInitialQuery(w.spec.PageSize, w.spec.SliceID, w.spec.SliceMax)

	for {
		w.state = StateSearching
		result, err := w.search(ctx, url, body)
		if err != nil {
			return err
		}

		w.state = StateEmitting
		// Even an empty page may carry a fresh cursor; keep it for clearing.
		if result.ScrollID != "" {
			w.cursor = result.ScrollID
		}
		if len(result.Hits) == 0 {
			w.state = StateDone
			return nil
		}

		if err := w.out.WriteBatch(result.Hits); err != nil {
			return err
		}
		w.pages++
		w.documents += int64(len(result.Hits))
		pagesTotal.Inc()
		w.observer.PageEmitted(ctx, w.spec.SliceID, len(result.Hits))

		w.logger.Debug().Int("hits", len(result.Hits)).Int64("documents", w.documents).Msg("Page emitted")

		w.state = StateScrolling
		url = protocol.URL(w.spec.Host, protocol.ScrollPath)
		body = protocol.BuildScrollQuery(w.cursor)
	}
}

func (w *Worker) search(ctx context.Context, url string, body []byte) (*protocol.SearchResult, error) {
	resp, err := w.exec.Execute(ctx, url, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, transport.NewHTTPStatusError(resp)
	}
	return protocol.ParseSearchResponse(resp.Body)
}

// release clears the slice's scroll context. Failure only costs store
// memory until the TTL lapses, so it is logged and otherwise ignored.
func (w *Worker) release(ctx context.Context) {
	url := protocol.URL(w.spec.Host, protocol.ScrollPath)
	resp, err := w.exec.Do(ctx, http.MethodDelete, url, protocol.BuildClearScrollQuery(w.cursor))
	if err == nil && !resp.OK() && resp.StatusCode != http.StatusNotFound {
		err = transport.NewHTTPStatusError(resp)
	}
	if err != nil {
		scrollClearFailuresTotal.Inc()
		w.logger.Warn().Err(err).Msg("Failed to clear scroll context")
	}
	w.cursor = ""
}
