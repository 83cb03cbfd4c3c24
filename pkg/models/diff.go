package models

import "time"

// ImportMode selects how imported rows reconcile with stored ones.
type ImportMode string

const (
	ModeReplace ImportMode = "replace"
	ModeMerge   ImportMode = "merge"
)

// Valid reports whether m is a known mode.
func (m ImportMode) Valid() bool {
	return m == ModeReplace || m == ModeMerge
}

// DiffAction tags a reconciliation decision.
type DiffAction string

const (
	ActionInsert DiffAction = "INSERT"
	ActionUpdate DiffAction = "UPDATE"
	ActionSkip   DiffAction = "SKIP"
	ActionBoth   DiffAction = "BOTH"
	ActionDelete DiffAction = "DELETE"
)

// DiffChange is one reconciliation decision, consumed once by the executor.
type DiffChange struct {
	Action            DiffAction `json:"action"`
	MemberName        string     `json:"memberName"`
	MemberDob         *string    `json:"memberDob"`
	MemberTelephone   *string    `json:"memberTelephone"`
	MemberAddress     *string    `json:"memberAddress"`
	RequestType       string     `json:"requestType"`
	QualityMeasure    string     `json:"qualityMeasure"`
	OldStatus         *string    `json:"oldStatus"`
	NewStatus         *string    `json:"newStatus"`
	StatusDate        *string    `json:"statusDate"`
	Tracking1         *string    `json:"tracking1,omitempty"`
	Tracking2         *string    `json:"tracking2,omitempty"`
	ExistingPatientID *string    `json:"existingPatientId,omitempty"`
	ExistingMeasureID *string    `json:"existingMeasureId,omitempty"`
	OwnerID           *string    `json:"ownerId,omitempty"`
	SourceRowIndex    *int       `json:"sourceRowIndex,omitempty"`
	Reason            string     `json:"reason"`
}

// DiffSummary holds aggregate counts for a diff.
type DiffSummary struct {
	Inserts          int `json:"inserts"`
	Updates          int `json:"updates"`
	Skips            int `json:"skips"`
	Both             int `json:"both"`
	Deletes          int `json:"deletes"`
	NewPatients      int `json:"newPatients"`
	ExistingPatients int `json:"existingPatients"`
}

// DiffResult is the immutable output of the Diff Calculator.
type DiffResult struct {
	Mode        ImportMode   `json:"mode"`
	Changes     []DiffChange `json:"changes"`
	Summary     DiffSummary  `json:"summary"`
	GeneratedAt time.Time    `json:"generatedAt"`
}
