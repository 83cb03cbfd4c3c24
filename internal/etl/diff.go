package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

// statusClass is the merge-time reading of a stored or imported status.
type statusClass int

const (
	classCompliant statusClass = iota
	classNonCompliant
	classUnknown
	numClasses
)

func (c statusClass) String() string {
	switch c {
	case classCompliant:
		return "compliant"
	case classNonCompliant:
		return "non-compliant"
	default:
		return "unknown"
	}
}

// Non-compliant keywords are checked first: "not at goal" contains "at goal".
var (
	nonCompliantKeywords = []string{"not addressed", "not at goal", "declined", "invalid", "resolved", "discussed", "unnecessary"}
	compliantKeywords    = []string{"completed", "at goal", "confirmed", "scheduled", "ordered"}
)

func classifyStatus(status *string) statusClass {
	if status == nil {
		return classUnknown
	}
	s := strings.ToLower(*status)
	for _, k := range nonCompliantKeywords {
		if strings.Contains(s, k) {
			return classNonCompliant
		}
	}
	for _, k := range compliantKeywords {
		if strings.Contains(s, k) {
			return classCompliant
		}
	}
	return classUnknown
}

type mergeDecision struct {
	action models.DiffAction
	reason string
}

// mergeMatrix is indexed [old][new].
var mergeMatrix = [numClasses][numClasses]mergeDecision{
	classCompliant: {
		classCompliant:    {models.ActionSkip, "Both compliant - keeping existing"},
		classNonCompliant: {models.ActionBoth, "Downgrade detected - keeping compliant record and inserting non-compliant"},
		classUnknown:      {models.ActionSkip, "New status is blank - keeping existing compliant record"},
	},
	classNonCompliant: {
		classCompliant:    {models.ActionUpdate, "Upgrading from non-compliant to compliant"},
		classNonCompliant: {models.ActionSkip, "Both non-compliant - keeping existing"},
		classUnknown:      {models.ActionSkip, "New status is blank - keeping existing non-compliant record"},
	},
	classUnknown: {
		classCompliant:    {models.ActionUpdate, "Existing status unknown - adopting new compliant status"},
		classNonCompliant: {models.ActionUpdate, "Existing status unknown - adopting new non-compliant status"},
		classUnknown:      {models.ActionSkip, "Cannot determine compliance - keeping existing"},
	},
}

func decideMerge(oldStatus, newStatus *string) mergeDecision {
	return mergeMatrix[classifyStatus(oldStatus)][classifyStatus(newStatus)]
}

type recordKey struct {
	name, dob, requestType, qualityMeasure string
}

type patientKey struct {
	name, dob string
}

// DiffCalculator reconciles transformed rows with persisted records.
type DiffCalculator struct {
	Reader RecordReader
	Now    func() time.Time
}

func NewDiffCalculator(reader RecordReader) *DiffCalculator {
	return &DiffCalculator{Reader: reader, Now: time.Now}
}

// Calculate loads a fresh snapshot of existing records and builds the diff.
// Read failures are returned as is; no partial diff is produced.
func (d *DiffCalculator) Calculate(ctx context.Context, rows []models.TransformedRow, mode models.ImportMode) (*models.DiffResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	existing, err := d.Reader.LoadExisting(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing records: %w", err)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	result := &models.DiffResult{
		Mode:        mode,
		Changes:     []models.DiffChange{},
		GeneratedAt: now(),
	}
	if mode == models.ModeReplace {
		result.Changes = replaceChanges(rows, existing)
	} else {
		result.Changes = mergeChanges(rows, existing)
	}
	result.Summary = summarize(result.Changes, rows, existing)

	logger.L().Info().
		Str("mode", string(mode)).
		Int("existing", len(existing)).
		Int("inserts", result.Summary.Inserts).
		Int("updates", result.Summary.Updates).
		Int("skips", result.Summary.Skips).
		Int("both", result.Summary.Both).
		Int("deletes", result.Summary.Deletes).
		Msg("diff calculated")
	return result, nil
}

func replaceChanges(rows []models.TransformedRow, existing []models.ExistingRecord) []models.DiffChange {
	changes := make([]models.DiffChange, 0, len(existing)+len(rows))
	for _, rec := range existing {
		changes = append(changes, models.DiffChange{
			Action:            models.ActionDelete,
			MemberName:        rec.MemberName,
			MemberDob:         utils.Ptr(rec.MemberDob),
			RequestType:       rec.RequestType,
			QualityMeasure:    rec.QualityMeasure,
			OldStatus:         rec.MeasureStatus,
			ExistingPatientID: utils.Ptr(rec.PatientID),
			ExistingMeasureID: utils.Ptr(rec.MeasureID),
			OwnerID:           rec.OwnerID,
			Reason:            "Replace mode - deleting existing record",
		})
	}
	for _, row := range rows {
		c := insertChange(row, "Replace mode - inserting imported record")
		changes = append(changes, c)
	}
	return changes
}

func mergeChanges(rows []models.TransformedRow, existing []models.ExistingRecord) []models.DiffChange {
	// Records arrive in row order, so the latest record for a key wins.
	byKey := make(map[recordKey]models.ExistingRecord, len(existing))
	patients := make(map[patientKey]bool)
	for _, rec := range existing {
		byKey[recordKey{rec.MemberName, rec.MemberDob, rec.RequestType, rec.QualityMeasure}] = rec
		patients[patientKey{rec.MemberName, rec.MemberDob}] = true
	}

	changes := make([]models.DiffChange, 0, len(rows))
	for _, row := range rows {
		dob := utils.Deref(row.MemberDob)
		rec, ok := byKey[recordKey{row.MemberName, dob, row.RequestType, row.QualityMeasure}]
		if !ok {
			reason := "New patient"
			if patients[patientKey{row.MemberName, dob}] {
				reason = "New measure for existing patient"
			}
			changes = append(changes, insertChange(row, reason))
			continue
		}

		decision := decideMerge(rec.MeasureStatus, row.MeasureStatus)
		c := insertChange(row, decision.reason)
		c.Action = decision.action
		c.OldStatus = rec.MeasureStatus
		c.ExistingPatientID = utils.Ptr(rec.PatientID)
		c.ExistingMeasureID = utils.Ptr(rec.MeasureID)
		c.OwnerID = rec.OwnerID
		changes = append(changes, c)
	}
	return changes
}

func insertChange(row models.TransformedRow, reason string) models.DiffChange {
	return models.DiffChange{
		Action:          models.ActionInsert,
		MemberName:      row.MemberName,
		MemberDob:       row.MemberDob,
		MemberTelephone: row.MemberTelephone,
		MemberAddress:   row.MemberAddress,
		RequestType:     row.RequestType,
		QualityMeasure:  row.QualityMeasure,
		NewStatus:       row.MeasureStatus,
		StatusDate:      row.StatusDate,
		Tracking1:       row.Tracking1,
		Tracking2:       row.Tracking2,
		SourceRowIndex:  utils.Ptr(row.SourceRowIndex),
		Reason:          reason,
	}
}

func summarize(changes []models.DiffChange, rows []models.TransformedRow, existing []models.ExistingRecord) models.DiffSummary {
	var s models.DiffSummary
	for _, c := range changes {
		switch c.Action {
		case models.ActionInsert:
			s.Inserts++
		case models.ActionUpdate:
			s.Updates++
		case models.ActionSkip:
			s.Skips++
		case models.ActionBoth:
			s.Both++
		case models.ActionDelete:
			s.Deletes++
		}
	}

	known := make(map[patientKey]bool, len(existing))
	for _, rec := range existing {
		known[patientKey{rec.MemberName, rec.MemberDob}] = true
	}
	counted := make(map[patientKey]bool)
	for _, row := range rows {
		k := patientKey{row.MemberName, utils.Deref(row.MemberDob)}
		if counted[k] {
			continue
		}
		counted[k] = true
		if known[k] {
			s.ExistingPatients++
		} else {
			s.NewPatients++
		}
	}
	return s
}
