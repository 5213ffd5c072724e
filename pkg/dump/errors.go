package dump

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/Sternrassler/esdump/pkg/pagination"
)

// ErrEmptyIndex reports a pre-flight count of zero. Run treats it as a
// successful, empty dump.
var ErrEmptyIndex = errors.New("index is empty")

// UsageError is invalid or missing command-line input, detected before
// any request is made.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// SliceFailuresError reports the slices that failed in a dump. The
// remaining slices completed and their output was written.
type SliceFailuresError struct {
	Failed []pagination.Outcome
	Total  int

	errs *multierror.Error
}

func newSliceFailuresError(failed []pagination.Outcome, total int) *SliceFailuresError {
	e := &SliceFailuresError{Failed: failed, Total: total}
	for _, o := range failed {
		err := o.Err
		if err == nil {
			err = fmt.Errorf("ended in state %s", o.State)
		}
		e.errs = multierror.Append(e.errs, fmt.Errorf("slice %02d: %w", o.SliceID, err))
	}
	return e
}

func (e *SliceFailuresError) Error() string {
	return fmt.Sprintf("%d of %d slices failed", len(e.Failed), e.Total)
}

// Unwrap exposes the individual slice errors to errors.Is and errors.As.
func (e *SliceFailuresError) Unwrap() error {
	return e.errs.ErrorOrNil()
}

// SliceIDs returns the ids of the failed slices in ascending order.
func (e *SliceFailuresError) SliceIDs() []int {
	ids := make([]int, len(e.Failed))
	for i, o := range e.Failed {
		ids[i] = o.SliceID
	}
	return ids
}
