package models

import "time"

// ExecutionStats counts what one execution did.
type ExecutionStats struct {
	Inserted        int `json:"inserted"`
	Updated         int `json:"updated"`
	Deleted         int `json:"deleted"`
	Skipped         int `json:"skipped"`
	Both            int `json:"both"`
	PatientsCreated int `json:"patientsCreated"`
	PatientsUpdated int `json:"patientsUpdated"`
}

// ExecutionError is a per-change failure that did not abort the transaction.
// ChangeIndex is -1 for the synthetic transaction failure.
type ExecutionError struct {
	ChangeIndex    int        `json:"changeIndex"`
	Action         DiffAction `json:"action,omitempty"`
	MemberName     string     `json:"memberName,omitempty"`
	QualityMeasure string     `json:"qualityMeasure,omitempty"`
	Message        string     `json:"message"`
}

// ExecutionResult reports the outcome of replaying a preview.
type ExecutionResult struct {
	Success  bool             `json:"success"`
	Mode     ImportMode       `json:"mode"`
	Stats    ExecutionStats   `json:"stats"`
	Errors   []ExecutionError `json:"errors"`
	Duration time.Duration    `json:"duration"`
}
