package etl

import (
	"strings"

	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

// ColumnMapper resolves spreadsheet headers against a system configuration.
type ColumnMapper struct {
	Systems SystemSource
}

func NewColumnMapper(systems SystemSource) *ColumnMapper {
	return &ColumnMapper{Systems: systems}
}

// Map resolves headers for systemID. An unknown system is the only error;
// unmapped and missing required columns are reported in the result.
func (m *ColumnMapper) Map(headers []string, systemID string) (*models.MappingResult, error) {
	cfg, err := m.Systems.Get(systemID)
	if err != nil {
		return nil, err
	}
	return MapColumns(headers, cfg), nil
}

// MapColumns is the pure mapping of headers over one configuration. Headers
// are trimmed and compared case-sensitively; blank headers are dropped.
// Measure columns sharing (request type, quality measure) form one group,
// in order of first appearance.
func MapColumns(headers []string, cfg *models.SystemConfig) *models.MappingResult {
	res := &models.MappingResult{
		SystemID:       cfg.ID,
		PatientColumns: make(map[string]string),
	}
	type groupKey struct{ rt, qm string }
	groupIdx := make(map[groupKey]int)

	for _, raw := range headers {
		h := utils.NormalizeHeader(raw)
		if h == "" {
			continue
		}
		col := models.MappedColumn{Header: h, Source: raw}

		if field, ok := cfg.PatientColumns[h]; ok {
			col.Kind = models.ColumnPatient
			col.PatientField = field
			if _, seen := res.PatientColumns[field]; !seen {
				res.PatientColumns[field] = raw
			}
		} else if mc, ok := cfg.MeasureColumns[h]; ok {
			col.Kind = models.ColumnMeasure
			col.RequestType = mc.RequestType
			col.QualityMeasure = mc.QualityMeasure
			col.Role = mc.Role

			key := groupKey{mc.RequestType, mc.QualityMeasure}
			i, ok := groupIdx[key]
			if !ok {
				i = len(res.MeasureGroups)
				groupIdx[key] = i
				res.MeasureGroups = append(res.MeasureGroups, models.MeasureGroup{
					RequestType:    mc.RequestType,
					QualityMeasure: mc.QualityMeasure,
				})
			}
			g := &res.MeasureGroups[i]
			if mc.Role == models.MeasureRoleStatus {
				g.StatusColumns = append(g.StatusColumns, raw)
			} else {
				g.DateColumns = append(g.DateColumns, raw)
			}
		} else if cfg.IsSkipped(h) {
			col.Kind = models.ColumnSkip
			res.Skipped = append(res.Skipped, h)
		} else {
			col.Kind = models.ColumnUnmapped
			res.Unmapped = append(res.Unmapped, h)
		}
		res.Columns = append(res.Columns, col)
	}

	for _, field := range cfg.RequiredFields {
		if _, ok := res.PatientColumns[field]; ok {
			continue
		}
		name := field
		if headers := cfg.HeadersForField(field); len(headers) > 0 {
			name = strings.Join(headers, " / ")
		}
		res.MissingRequired = append(res.MissingRequired, name)
	}
	return res
}
