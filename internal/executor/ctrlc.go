package executor

import "time"

// CtrlCAction is the executor's response to one interrupt keypress.
type CtrlCAction int

const (
	// CtrlCForward forwards the press to the child and starts (or
	// restarts) the double-press window.
	CtrlCForward CtrlCAction = iota
	// CtrlCTerminate terminates the execution: the press landed inside
	// the window opened by a previous press.
	CtrlCTerminate
)

// CtrlCState tracks the double-press-to-terminate gesture. Transitions
// are pure functions of wall-clock time; no other component reads or
// mutates it.
type CtrlCState struct {
	firstPress time.Time
	window     time.Duration
}

// NewCtrlCState creates the state machine with the given window.
func NewCtrlCState(window time.Duration) *CtrlCState {
	return &CtrlCState{window: window}
}

// Press records an interrupt press at now and returns the action to
// take. A press outside the window re-arms it rather than terminating.
func (s *CtrlCState) Press(now time.Time) CtrlCAction {
	if !s.firstPress.IsZero() && now.Sub(s.firstPress) <= s.window {
		s.firstPress = time.Time{}
		return CtrlCTerminate
	}
	s.firstPress = now
	return CtrlCForward
}
