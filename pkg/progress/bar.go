// Package progress reports dump progress while slices are running.
//
// Reporters implement pagination.Observer. They never influence the dump:
// a reporter that fails to render or persist progress logs and carries on.
package progress

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/Sternrassler/esdump/pkg/logging"
	"github.com/Sternrassler/esdump/pkg/pagination"
)

// Bar renders a terminal progress bar of documents written against the
// pre-flight count.
type Bar struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	done   int64
	logger zerolog.Logger
}

var _ pagination.Observer = (*Bar)(nil)

// NewBar draws on w, normally stderr so stdout stays pure NDJSON.
func NewBar(w io.Writer, total int64, index string) *Bar {
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("dumping "+index),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)
	return &Bar{bar: bar, logger: logging.NewLogger(logging.ComponentProgress)}
}

func (b *Bar) PageEmitted(_ context.Context, _ int, hits int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done += int64(hits)
	if err := b.bar.Add(hits); err != nil {
		b.logger.Debug().Err(err).Msg("Progress bar update failed")
	}
}

func (b *Bar) SliceFinished(context.Context, pagination.Outcome) {}

// Finish completes the bar. Documents written after the count was taken
// may leave it short of or past total; Finish normalizes either.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bar.Finish(); err != nil {
		b.logger.Debug().Err(err).Msg("Progress bar finish failed")
	}
}

// Current returns the number of documents counted so far.
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
