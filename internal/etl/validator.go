package etl

import (
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

// Validator checks transformed rows against a system configuration.
type Validator struct {
	Config *models.SystemConfig
}

func NewValidator(config *models.SystemConfig) *Validator {
	return &Validator{Config: config}
}

type findingKey struct {
	row      int
	field    string
	severity models.Severity
}

type duplicateKey struct {
	name, dob, requestType, qualityMeasure string
}

// Validate reports errors, warnings and intra-file duplicates. Each
// (source row, field, severity) is reported at most once.
func (v *Validator) Validate(rows []models.TransformedRow) models.ValidationResult {
	res := models.ValidationResult{
		Errors:     []models.ValidationError{},
		Warnings:   []models.ValidationError{},
		Duplicates: []models.DuplicateGroup{},
	}
	seen := make(map[findingKey]bool)
	errorRows := make(map[int]bool)
	warningRows := make(map[int]bool)

	add := func(i int, row models.TransformedRow, field, msg string, sev models.Severity) {
		if sev == models.SeverityError {
			errorRows[i] = true
		} else {
			warningRows[i] = true
		}
		k := findingKey{row.SourceRowIndex, field, sev}
		if seen[k] {
			return
		}
		seen[k] = true
		e := models.ValidationError{
			RowIndex:   row.SourceRowIndex,
			Field:      field,
			Message:    msg,
			Severity:   sev,
			MemberName: row.MemberName,
		}
		if sev == models.SeverityError {
			res.Errors = append(res.Errors, e)
		} else {
			res.Warnings = append(res.Warnings, e)
		}
	}

	for i, row := range rows {
		if strings.TrimSpace(row.MemberName) == "" {
			add(i, row, models.FieldMemberName, "Member name is required", models.SeverityError)
		}
		switch {
		case row.MemberDob == nil || *row.MemberDob == "":
			add(i, row, models.FieldMemberDob, "Date of birth is required", models.SeverityError)
		case !isISODate(*row.MemberDob):
			add(i, row, models.FieldMemberDob, fmt.Sprintf("Invalid date of birth: %s", *row.MemberDob), models.SeverityError)
		}
		switch {
		case row.RequestType == "":
			add(i, row, "requestType", "Request type is required", models.SeverityError)
		case !v.Config.HasRequestType(row.RequestType):
			add(i, row, "requestType", fmt.Sprintf("Unknown request type: %s", row.RequestType), models.SeverityError)
		}
		switch {
		case row.QualityMeasure == "":
			add(i, row, "qualityMeasure", "Quality measure is required", models.SeverityError)
		case v.Config.HasRequestType(row.RequestType) && !v.Config.MeasureBelongsTo(row.RequestType, row.QualityMeasure):
			add(i, row, "qualityMeasure",
				fmt.Sprintf("Quality measure %q is not configured for request type %q", row.QualityMeasure, row.RequestType),
				models.SeverityWarning)
		}
		if row.MemberTelephone == nil || *row.MemberTelephone == "" {
			add(i, row, models.FieldMemberTelephone, "Missing phone number", models.SeverityWarning)
		}
		if row.MeasureStatus == nil || *row.MeasureStatus == "" {
			add(i, row, "measureStatus", "Missing measure status", models.SeverityWarning)
		}
	}

	var order []duplicateKey
	groups := make(map[duplicateKey][]int)
	members := make(map[duplicateKey][]int)
	for i, row := range rows {
		k := duplicateKey{row.MemberName, utils.Deref(row.MemberDob), row.RequestType, row.QualityMeasure}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		members[k] = append(members[k], i)
		if !containsInt(groups[k], row.SourceRowIndex) {
			groups[k] = append(groups[k], row.SourceRowIndex)
		}
	}
	for _, k := range order {
		indices := groups[k]
		if len(indices) < 2 {
			continue
		}
		res.Duplicates = append(res.Duplicates, models.DuplicateGroup{
			MemberName:     k.name,
			MemberDob:      k.dob,
			RequestType:    k.requestType,
			QualityMeasure: k.qualityMeasure,
			RowIndices:     indices,
		})
		first := indices[0]
		for _, i := range members[k] {
			if rows[i].SourceRowIndex == first {
				continue
			}
			add(i, rows[i], "duplicate",
				fmt.Sprintf("Duplicate of row %d: same patient and %s measure", first, k.qualityMeasure),
				models.SeverityWarning)
		}
	}

	res.Valid = len(res.Errors) == 0
	res.Stats = models.ValidationStats{
		TotalRows:       len(rows),
		ValidRows:       len(rows) - len(errorRows),
		ErrorRows:       len(errorRows),
		WarningRows:     len(warningRows),
		DuplicateGroups: len(res.Duplicates),
	}
	logger.L().Info().
		Str("system", v.Config.ID).
		Bool("valid", res.Valid).
		Int("errors", len(res.Errors)).
		Int("warnings", len(res.Warnings)).
		Int("duplicate_groups", len(res.Duplicates)).
		Msg("validation complete")
	return res
}

func isISODate(v string) bool {
	_, err := time.Parse(utils.ISODate, v)
	return err == nil
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
