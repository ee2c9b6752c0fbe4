package model

// Status is the scheduling state of a job for one run date.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
	// StatusStopped is reserved for operator stop controls; nothing in the engine reaches it.
	StatusStopped Status = "stopped"
	StatusDeleted Status = "deleted"
	StatusInvalid Status = "invalid"

	// StatusMissing is the virtual status of a (job, run date) pair with no
	// event in the ledger. It is never persisted.
	StatusMissing Status = "missing"
)

// AllStatuses lists every status that can appear in the ledger.
var AllStatuses = []Status{
	StatusWaiting, StatusReady, StatusRunning, StatusDone, StatusFailed,
	StatusUnknown, StatusStopped, StatusDeleted, StatusInvalid,
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no further automatic transition happens for the run date.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusInvalid, StatusDeleted, StatusUnknown, StatusStopped:
		return true
	}
	return false
}

// IsStored reports whether s may be written to the ledger.
func (s Status) IsStored() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// ValidTransitions defines the transitions the engine performs automatically.
// Deletion is handled separately since any status may become deleted.
var ValidTransitions = map[Status][]Status{
	StatusMissing: {StatusWaiting},
	StatusWaiting: {StatusReady, StatusInvalid},
	StatusReady:   {StatusRunning},
	StatusRunning: {StatusDone, StatusFailed, StatusUnknown},
	StatusDeleted: {StatusWaiting},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusDeleted {
		return s != StatusDeleted && s != StatusMissing
	}
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
