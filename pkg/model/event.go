package model

import "time"

// StatusEvent is one immutable entry of the status ledger.
type StatusEvent struct {
	// Seq is assigned by the store on append and orders events sharing a key.
	Seq     int64     `json:"seq"`
	JobID   string    `json:"job_id"`
	RunDate string    `json:"run_date"`
	Time    time.Time `json:"time"`
	Status  Status    `json:"status"`
	Comment string    `json:"comment"`
	// Session identifies the daemon process that appended the event.
	Session string `json:"session"`
}

// NewStatusEvent returns an unsaved event for the given key.
func NewStatusEvent(jobID, runDate string, status Status, comment string) *StatusEvent {
	return &StatusEvent{
		JobID:   jobID,
		RunDate: runDate,
		Status:  status,
		Comment: comment,
	}
}
