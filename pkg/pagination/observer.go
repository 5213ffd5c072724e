package pagination

import (
	"context"
)

// Observer is told about slice progress. Implementations are shared by all
// workers of a run and must be safe for concurrent use. Observers cannot
// influence the dump: they have no way to fail a slice.
type Observer interface {
	PageEmitted(ctx context.Context, sliceID int, hits int)
	SliceFinished(ctx context.Context, outcome Outcome)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) PageEmitted(context.Context, int, int)   {}
func (NopObserver) SliceFinished(context.Context, Outcome) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (obs Observers) PageEmitted(ctx context.Context, sliceID int, hits int) {
	for _, o := range obs {
		o.PageEmitted(ctx, sliceID, hits)
	}
}

func (obs Observers) SliceFinished(ctx context.Context, outcome Outcome) {
	for _, o := range obs {
		o.SliceFinished(ctx, outcome)
	}
}
