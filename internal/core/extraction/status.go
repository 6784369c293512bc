package extraction

// JobState is the tagged result of one poll of a remote extraction job.
// Expected terminal outcomes are values here, not errors; only network
// faults travel through error returns.
type JobState int

const (
	StatePending JobState = iota
	StateRunning
	StateDone
	StateFailed
	StateUnknown
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// jobStatus is one observation of a remote job.
type jobStatus struct {
	State     JobState
	RawState  string
	ResultURL string
	ErrMsg    string
}

// parseState maps the service's state strings onto the tagged enum.
// The service reports a few non-terminal variants while a file moves
// through its queue.
func parseState(s string) JobState {
	switch s {
	case "pending", "queued":
		return StatePending
	case "running", "converting", "waiting-file", "extracting":
		return StateRunning
	case "done":
		return StateDone
	case "failed":
		return StateFailed
	default:
		return StateUnknown
	}
}
