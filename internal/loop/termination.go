package loop

import "github.com/a-marczewski/hatloop/internal/executor"

// TerminationReason is the closed set of ways a run ends. Each carries
// a fixed process exit code and machine-readable reason string. Once
// returned, the loop must not iterate again.
type TerminationReason int

const (
	TerminationCompletionPromise TerminationReason = iota
	TerminationMaxIterations
	TerminationMaxRuntime
	TerminationMaxCost
	TerminationConsecutiveFailures
	TerminationLoopThrashing
	TerminationValidationFailure
	TerminationStopped
	TerminationInterrupted
)

// ExitCode maps the reason to the process exit code: 0 for completion,
// 2 for the limit family, 1 for the failure family, 130 for interrupt.
func (r TerminationReason) ExitCode() int {
	switch r {
	case TerminationCompletionPromise:
		return 0
	case TerminationMaxIterations, TerminationMaxRuntime, TerminationMaxCost:
		return 2
	case TerminationInterrupted:
		return 130
	default:
		return 1
	}
}

// String returns the machine-readable reason.
func (r TerminationReason) String() string {
	switch r {
	case TerminationCompletionPromise:
		return "completion_promise"
	case TerminationMaxIterations:
		return "max_iterations"
	case TerminationMaxRuntime:
		return "max_runtime"
	case TerminationMaxCost:
		return "max_cost"
	case TerminationConsecutiveFailures:
		return "consecutive_failures"
	case TerminationLoopThrashing:
		return "loop_thrashing"
	case TerminationValidationFailure:
		return "validation_failure"
	case TerminationStopped:
		return "stopped"
	case TerminationInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ConvertTermination maps an execution's termination type to a loop
// outcome. Idle timeout is mode-sensitive: in interactive mode the
// agent is waiting for confirmation, not stuck, so the iteration simply
// completes; in autonomous mode it is a hard stop.
func ConvertTermination(t executor.TerminationType, interactive bool) (TerminationReason, bool) {
	switch t {
	case executor.TerminationUserInterrupt, executor.TerminationForceKill:
		return TerminationInterrupted, true
	case executor.TerminationIdleTimeout:
		if interactive {
			return 0, false
		}
		return TerminationStopped, true
	default:
		return 0, false
	}
}
