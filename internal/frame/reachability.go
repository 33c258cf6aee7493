package frame

import "errors"

// Reachability is the outcome of probing a window's in-process sandbox
type Reachability int

const (
	// Unreachable: access denied, detached, or not initialized
	Unreachable Reachability = iota
	// Reachable: the handle can be used directly
	Reachable
	// Indeterminate: the probe itself failed
	Indeterminate
)

// String returns the string representation of the reachability
func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Classify maps a Handle error to a reachability
func Classify(err error) Reachability {
	switch {
	case err == nil:
		return Reachable
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrDetached), errors.Is(err, ErrNoHandle):
		return Unreachable
	default:
		return Indeterminate
	}
}
