package convert

import "fmt"

// RunState is the orchestrator position in the pipeline state machine:
//
//	NOT_STARTED → EXPORTING → EXPORTED → COMPILING → COMPILED
//
// FAILED is terminal and reachable from EXPORTING or COMPILING. Cached
// artifacts let a run enter at EXPORTED (onnx present) or jump straight to
// COMPILED (compiled binary present).
type RunState string

const (
	StateNotStarted RunState = "NOT_STARTED"
	StateExporting  RunState = "EXPORTING"
	StateExported   RunState = "EXPORTED"
	StateCompiling  RunState = "COMPILING"
	StateCompiled   RunState = "COMPILED"
	StateFailed     RunState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == StateCompiled || s == StateFailed
}

// Transition validates a state machine edge and returns the new state.
// Invalid edges indicate an orchestrator bug, never an environment problem.
func Transition(from, to RunState) (RunState, error) {
	if allowedTransition(from, to) {
		return to, nil
	}
	return from, fmt.Errorf("invalid pipeline transition %s -> %s", from, to)
}

func allowedTransition(from, to RunState) bool {
	switch from {
	case StateNotStarted:
		// Direct edges to EXPORTED and COMPILED cover cache hits.
		return to == StateExporting || to == StateExported || to == StateCompiled
	case StateExporting:
		return to == StateExported || to == StateFailed
	case StateExported:
		return to == StateCompiling
	case StateCompiling:
		return to == StateCompiled || to == StateFailed
	default:
		return false
	}
}
