package loop

import "time"

// LoopState is owned exclusively by the engine's single logical thread
// of control; no field needs locking. Every field is updated by exactly
// one method per iteration, and all fields reset only at construction.
type LoopState struct {
	Iteration           int
	StartedAt           time.Time
	CostUSD             float64
	ConsecutiveFailures int

	// Thrashing detection.
	BlockCounts           map[string]int // task id -> build.blocked count
	Abandoned             map[string]bool
	AbandonedRedispatches int

	// Validation and recovery, tracked independently (same threshold,
	// separate counters).
	MalformedEvents  int
	RecoveryAttempts int

	// Completion debounce.
	CompletionConfirms int

	// Per-hat activation accounting.
	Activations map[string]int
	Exhausted   map[string]bool

	LastHat string // last hat whose events drove an execution
}

func newLoopState(now time.Time) *LoopState {
	return &LoopState{
		StartedAt:   now,
		BlockCounts: make(map[string]int),
		Abandoned:   make(map[string]bool),
		Activations: make(map[string]int),
		Exhausted:   make(map[string]bool),
	}
}
