package windowsync

import (
	"github.com/GriffinCanCode/crossframe/internal/frame"
)

// Probe resolves the in-process handle of target as seen from accessor.
// It must never block and never panic; anything but Reachable routes the
// target through the messaging channel.
type Probe func(accessor, target *frame.Window) (Handle, frame.Reachability)

// DefaultProbe reads the sandbox handle installed on target. A handle that is
// not yet bound to a cookie document is unreachable; a failing probe is
// indeterminate.
func DefaultProbe(accessor, target *frame.Window) (h Handle, r frame.Reachability) {
	defer func() {
		if recover() != nil {
			h, r = nil, frame.Indeterminate
		}
	}()

	raw, err := target.Handle(accessor)
	if err != nil {
		return nil, frame.Classify(err)
	}

	handle, ok := raw.(Handle)
	if !ok {
		return nil, frame.Indeterminate
	}
	if !handle.Ready() {
		return nil, frame.Unreachable
	}
	return handle, frame.Reachable
}
