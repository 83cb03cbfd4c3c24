package etl

import (
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

// DefaultNonCompliantStatus is used when a system has no label for a
// non-compliant measure.
const DefaultNonCompliantStatus = "Not Addressed"

type compliance int

const (
	complianceUnknown compliance = iota
	complianceCompliant
	complianceNonCompliant
)

var sheetCompliance = map[string]compliance{
	"compliant":     complianceCompliant,
	"c":             complianceCompliant,
	"yes":           complianceCompliant,
	"non compliant": complianceNonCompliant,
	"non-compliant": complianceNonCompliant,
	"noncompliant":  complianceNonCompliant,
	"nc":            complianceNonCompliant,
	"no":            complianceNonCompliant,
}

// classifySheetValue reads a raw compliance cell from the spreadsheet.
func classifySheetValue(v string) compliance {
	key := strings.ToLower(strings.Join(strings.Fields(v), " "))
	return sheetCompliance[key]
}

// Transformer reshapes wide rows (one per patient) into long rows (one per
// patient and quality measure).
type Transformer struct {
	Config *models.SystemConfig
	Now    func() time.Time
}

func NewTransformer(config *models.SystemConfig) *Transformer {
	return &Transformer{Config: config, Now: time.Now}
}

// Transform converts rows using the resolved mapping. Row-level problems
// are collected, never returned as an error.
func (t *Transformer) Transform(mapping *models.MappingResult, rows []map[string]string) *models.TransformResult {
	today := utils.FormatDate(t.now())
	res := &models.TransformResult{
		Rows:               []models.TransformedRow{},
		Errors:             []models.TransformError{},
		PatientsNoMeasures: []models.PatientNoMeasures{},
	}
	res.Stats.InputRows = len(rows)

	nameCol := mapping.PatientColumns[models.FieldMemberName]
	dobCol := mapping.PatientColumns[models.FieldMemberDob]
	phoneCol := mapping.PatientColumns[models.FieldMemberTelephone]
	addrCol := mapping.PatientColumns[models.FieldMemberAddress]

	for idx, row := range rows {
		name := utils.NormalizeName(cell(row, nameCol))
		if name == "" {
			res.Errors = append(res.Errors, models.TransformError{
				RowIndex: idx,
				Column:   nameCol,
				Message:  "missing patient name",
			})
			res.Stats.SkippedRows++
			continue
		}

		var dob *string
		if raw := cell(row, dobCol); raw != "" {
			iso, err := utils.ParseDate(raw)
			if err != nil {
				res.Errors = append(res.Errors, models.TransformError{
					RowIndex:   idx,
					Column:     dobCol,
					Message:    fmt.Sprintf("invalid date format: %q", raw),
					MemberName: name,
				})
			} else {
				dob = &iso
			}
		}

		var phone *string
		if raw := cell(row, phoneCol); raw != "" {
			phone = utils.Ptr(utils.NormalizePhone(raw))
		}
		addr := utils.NilIfEmpty(cell(row, addrCol))

		emitted := 0
		for _, g := range mapping.MeasureGroups {
			status, column, ok := t.resolveGroup(g, row)
			if !ok {
				continue
			}
			out := models.TransformedRow{
				MemberName:      name,
				MemberDob:       dob,
				MemberTelephone: phone,
				MemberAddress:   addr,
				RequestType:     g.RequestType,
				QualityMeasure:  g.QualityMeasure,
				MeasureStatus:   status,
				SourceRowIndex:  idx,
				SourceColumn:    column,
			}
			if status != nil {
				out.StatusDate = utils.Ptr(today)
			}
			out.Tracking1, out.Tracking2 = tracking(g, row)
			res.Rows = append(res.Rows, out)
			emitted++
		}
		if emitted == 0 {
			res.PatientsNoMeasures = append(res.PatientsNoMeasures, models.PatientNoMeasures{
				RowIndex:   idx,
				MemberName: name,
			})
		}
	}

	res.Stats.OutputRows = len(res.Rows)
	res.Stats.ErrorCount = len(res.Errors)
	res.Stats.NoMeasureRow = len(res.PatientsNoMeasures)
	logger.L().Info().
		Str("system", t.Config.ID).
		Int("input_rows", res.Stats.InputRows).
		Int("output_rows", res.Stats.OutputRows).
		Int("errors", res.Stats.ErrorCount).
		Msg("transform complete")
	return res
}

// resolveGroup aggregates one measure group for a row. ok is false when no
// column of the group has data. Any non-compliant value beats any compliant one.
func (t *Transformer) resolveGroup(g models.MeasureGroup, row map[string]string) (status *string, column string, ok bool) {
	var firstRaw, firstRawCol, compliantCol, nonCompliantCol string
	for _, col := range g.StatusColumns {
		v := cell(row, col)
		if v == "" {
			continue
		}
		if firstRaw == "" {
			firstRaw, firstRawCol = v, col
		}
		switch classifySheetValue(v) {
		case complianceNonCompliant:
			if nonCompliantCol == "" {
				nonCompliantCol = col
			}
		case complianceCompliant:
			if compliantCol == "" {
				compliantCol = col
			}
		}
	}

	labels := t.Config.StatusMap[g.QualityMeasure]
	switch {
	case nonCompliantCol != "":
		label := labels.NonCompliant
		if label == "" {
			label = DefaultNonCompliantStatus
		}
		return &label, nonCompliantCol, true
	case compliantCol != "":
		return utils.NilIfEmpty(labels.Compliant), compliantCol, true
	case firstRaw != "":
		return &firstRaw, firstRawCol, true
	}

	for _, col := range g.DateColumns {
		if cell(row, col) != "" {
			return nil, col, true
		}
	}
	return nil, "", false
}

// tracking returns the first two non-empty date columns of a group. Parseable
// dates are normalized to ISO; anything else is kept as written.
func tracking(g models.MeasureGroup, row map[string]string) (first, second *string) {
	var vals []string
	for _, col := range g.DateColumns {
		v := cell(row, col)
		if v == "" {
			continue
		}
		if iso, err := utils.ParseDate(v); err == nil {
			v = iso
		}
		vals = append(vals, v)
		if len(vals) == 2 {
			break
		}
	}
	if len(vals) > 0 {
		first = &vals[0]
	}
	if len(vals) > 1 {
		second = &vals[1]
	}
	return first, second
}

func (t *Transformer) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

func cell(row map[string]string, col string) string {
	if col == "" {
		return ""
	}
	return strings.TrimSpace(row[col])
}
