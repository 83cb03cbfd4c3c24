package models

// ColumnKind is the resolved role of one spreadsheet header.
type ColumnKind string

const (
	ColumnPatient  ColumnKind = "patient-field"
	ColumnMeasure  ColumnKind = "measure-field"
	ColumnSkip     ColumnKind = "skip"
	ColumnUnmapped ColumnKind = "unmapped"
)

// MappedColumn is one header annotated with its resolved role.
type MappedColumn struct {
	Header         string      `json:"header"`
	Source         string      `json:"-"`
	Kind           ColumnKind  `json:"kind"`
	PatientField   string      `json:"patientField,omitempty"`
	RequestType    string      `json:"requestType,omitempty"`
	QualityMeasure string      `json:"qualityMeasure,omitempty"`
	Role           MeasureRole `json:"role,omitempty"`
}

// MeasureGroup collects every column contributing to one quality measure.
// Column names are the headers as they appear in the source rows.
type MeasureGroup struct {
	RequestType    string   `json:"requestType"`
	QualityMeasure string   `json:"qualityMeasure"`
	DateColumns    []string `json:"dateColumns"`
	StatusColumns  []string `json:"statusColumns"`
}

// MappingResult is the Column Mapper's output for one header row.
type MappingResult struct {
	SystemID        string            `json:"systemId"`
	Columns         []MappedColumn    `json:"columns"`
	PatientColumns  map[string]string `json:"patientColumns"`
	MeasureGroups   []MeasureGroup    `json:"measureGroups"`
	Unmapped        []string          `json:"unmapped"`
	Skipped         []string          `json:"skipped"`
	MissingRequired []string          `json:"missingRequired"`
}
