package dump

import (
	"sort"

	"github.com/Sternrassler/esdump/pkg/pagination"
)

// Registry maps slice ids to their outcomes after all workers have joined.
type Registry struct {
	outcomes map[int]pagination.Outcome
	ids      []int
}

// NewRegistry indexes outcomes by slice id.
func NewRegistry(outcomes []pagination.Outcome) *Registry {
	r := &Registry{outcomes: make(map[int]pagination.Outcome, len(outcomes))}
	for _, o := range outcomes {
		if _, dup := r.outcomes[o.SliceID]; !dup {
			r.ids = append(r.ids, o.SliceID)
		}
		r.outcomes[o.SliceID] = o
	}
	sort.Ints(r.ids)
	return r
}

// Len returns the number of slices.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Outcome returns the outcome of slice id.
func (r *Registry) Outcome(id int) (pagination.Outcome, bool) {
	o, ok := r.outcomes[id]
	return o, ok
}

// Failed returns the failed outcomes in ascending slice id order.
func (r *Registry) Failed() []pagination.Outcome {
	var failed []pagination.Outcome
	for _, id := range r.ids {
		if o := r.outcomes[id]; !o.Success() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Documents returns the number of documents emitted across all slices.
func (r *Registry) Documents() int64 {
	var n int64
	for _, o := range r.outcomes {
		n += o.Documents
	}
	return n
}
