// Package capture owns the hardware-facing state machines for the camera
// and microphone. A manager holds at most one live stream; Stop releases it
// from any state, and the error state keeps it held so the supervisor
// decides between release and reacquire.
package capture

import (
	"fmt"
	"time"
)

// State is one position in a capture manager's lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting-access"
	StateReady      State = "ready"
	StateCapturing  State = "capturing"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateProcessing State = "processing"
	StateErrored    State = "error"
)

// DeviceAccessError reports a denied permission, a missing device or a
// device already in use.
type DeviceAccessError struct {
	Device string
	Err    error
}

func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("device access failed for %q: %v", e.Device, e.Err)
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }

// StateError reports an operation invoked from the wrong state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is not valid from state %q", e.Op, e.State)
}

// MinDurationError reports a recording stopped before the minimum length.
type MinDurationError struct {
	Min    time.Duration
	Actual time.Duration
}

func (e *MinDurationError) Error() string {
	return fmt.Sprintf("recording of %s is shorter than the %s minimum", e.Actual.Round(time.Millisecond), e.Min)
}
