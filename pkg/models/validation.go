package models

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError is one finding attached to a source row.
type ValidationError struct {
	RowIndex   int      `json:"rowIndex"`
	Field      string   `json:"field"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	MemberName string   `json:"memberName"`
}

// DuplicateGroup lists the source rows sharing one patient+measure key.
type DuplicateGroup struct {
	MemberName     string `json:"memberName"`
	MemberDob      string `json:"memberDob"`
	RequestType    string `json:"requestType"`
	QualityMeasure string `json:"qualityMeasure"`
	RowIndices     []int  `json:"rowIndices"`
}

// ValidationStats are row counts for one validation run.
type ValidationStats struct {
	TotalRows       int `json:"totalRows"`
	ValidRows       int `json:"validRows"`
	ErrorRows       int `json:"errorRows"`
	WarningRows     int `json:"warningRows"`
	DuplicateGroups int `json:"duplicateGroups"`
}

// ValidationResult is the Validator's output. Valid is false iff Errors is non-empty.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Errors     []ValidationError `json:"errors"`
	Warnings   []ValidationError `json:"warnings"`
	Duplicates []DuplicateGroup  `json:"duplicates"`
	Stats      ValidationStats   `json:"stats"`
}
