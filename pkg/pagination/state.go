package pagination

import (
	"github.com/Sternrassler/esdump/pkg/transport"
)

// State is a slice worker's position in its pagination lifecycle.
type State int

const (
	StateInit State = iota
	StateSearching
	StateEmitting
	StateScrolling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSearching:
		return "searching"
	case StateEmitting:
		return "emitting"
	case StateScrolling:
		return "scrolling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// SliceSpec describes one slice of a dump. It is built by the orchestrator
// and owned by exactly one worker afterwards.
type SliceSpec struct {
	Host     string
	Index    string
	SliceID  int
	SliceMax int
	PageSize int
	Auth     transport.AuthConfig
}

// Outcome is the single result a worker produces when it terminates.
type Outcome struct {
	SliceID int
	State   State

	// Err is the first error of a failed slice; nil on success.
	Err error

	Documents int64
	Pages     int
}

// Success reports whether the slice finished without error.
func (o Outcome) Success() bool {
	return o.Err == nil && o.State == StateDone
}
