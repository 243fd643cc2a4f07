package engine

// State is one target's position in the build lifecycle for a single
// (snapshot, request) pair.
type State int32

const (
	// StatePending means not all direct dependencies have resolved yet.
	StatePending State = iota
	// StateReady means every direct dependency reached a terminal success
	// state; the target is eligible for admission.
	StateReady
	// StateAdmitted means the scheduler granted the target's resource
	// weight; the cache is about to be probed.
	StateAdmitted
	// StateCacheHit means the artifact cache held a result for the
	// target's fingerprint. Terminal, success.
	StateCacheHit
	// StateRunning means the target was dispatched to the executor.
	StateRunning
	// StateSucceeded means the executor produced an artifact. Terminal.
	StateSucceeded
	// StateFailed means execution or bookkeeping failed for this target.
	// Terminal.
	StateFailed
	// StateSkippedFailed means an ancestor dependency failed, so this
	// target was never attempted. Terminal.
	StateSkippedFailed
	// StateCancelled means the build request was cancelled before the
	// target reached another terminal state. Terminal, not retried.
	StateCancelled
)

// Terminal reports whether the state is final for the request.
func (s State) Terminal() bool {
	switch s {
	case StateCacheHit, StateSucceeded, StateFailed, StateSkippedFailed, StateCancelled:
		return true
	}
	return false
}

// Success reports whether the state is a terminal success.
func (s State) Success() bool {
	return s == StateCacheHit || s == StateSucceeded
}

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateAdmitted:
		return "admitted"
	case StateCacheHit:
		return "cache-hit"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkippedFailed:
		return "skipped-failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
