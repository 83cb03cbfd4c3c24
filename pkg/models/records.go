package models

import "time"

// TransformedRow is one (patient, quality measure) fact in long format.
type TransformedRow struct {
	MemberName      string  `json:"memberName"`
	MemberDob       *string `json:"memberDob"`
	MemberTelephone *string `json:"memberTelephone"`
	MemberAddress   *string `json:"memberAddress"`
	RequestType     string  `json:"requestType"`
	QualityMeasure  string  `json:"qualityMeasure"`
	MeasureStatus   *string `json:"measureStatus"`
	StatusDate      *string `json:"statusDate"`
	Tracking1       *string `json:"tracking1"`
	Tracking2       *string `json:"tracking2"`
	SourceRowIndex  int     `json:"sourceRowIndex"`
	SourceColumn    string  `json:"sourceColumn"`
}

// TransformError is a row-level problem found while reshaping the sheet.
type TransformError struct {
	RowIndex   int    `json:"rowIndex"`
	Column     string `json:"column"`
	Message    string `json:"message"`
	MemberName string `json:"memberName,omitempty"`
}

// PatientNoMeasures records a patient row that produced no measure facts.
type PatientNoMeasures struct {
	RowIndex   int    `json:"rowIndex"`
	MemberName string `json:"memberName"`
}

// TransformStats summarizes one transform run.
type TransformStats struct {
	InputRows    int `json:"inputRows"`
	OutputRows   int `json:"outputRows"`
	SkippedRows  int `json:"skippedRows"`
	ErrorCount   int `json:"errorCount"`
	NoMeasureRow int `json:"noMeasureRows"`
}

// TransformResult is the Data Transformer's output.
type TransformResult struct {
	Rows               []TransformedRow    `json:"rows"`
	Errors             []TransformError    `json:"errors"`
	PatientsNoMeasures []PatientNoMeasures `json:"patientsWithNoMeasures"`
	Stats              TransformStats      `json:"stats"`
}

// ExistingRecord is a (patient, measure) fact already in the persisted store.
type ExistingRecord struct {
	PatientID      string  `json:"patientId"`
	MeasureID      string  `json:"measureId"`
	MemberName     string  `json:"memberName"`
	MemberDob      string  `json:"memberDob"`
	RequestType    string  `json:"requestType"`
	QualityMeasure string  `json:"qualityMeasure"`
	MeasureStatus  *string `json:"measureStatus"`
	OwnerID        *string `json:"ownerId"`
}

// Patient is the persisted patient entity. Identity is (MemberName, MemberDob).
type Patient struct {
	ID              string    `json:"id" bson:"_id"`
	MemberName      string    `json:"memberName" bson:"member_name"`
	MemberDob       string    `json:"memberDob" bson:"member_dob"`
	MemberTelephone *string   `json:"memberTelephone" bson:"member_telephone"`
	MemberAddress   *string   `json:"memberAddress" bson:"member_address"`
	OwnerID         *string   `json:"ownerId" bson:"owner_id"`
	CreatedAt       time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updated_at"`
}

// PatientMeasure is the persisted measure record owned by a patient.
type PatientMeasure struct {
	ID               string    `json:"id" bson:"_id"`
	PatientID        string    `json:"patientId" bson:"patient_id"`
	RequestType      string    `json:"requestType" bson:"request_type"`
	QualityMeasure   string    `json:"qualityMeasure" bson:"quality_measure"`
	MeasureStatus    *string   `json:"measureStatus" bson:"measure_status"`
	StatusDate       *string   `json:"statusDate" bson:"status_date"`
	DueDate          *string   `json:"dueDate" bson:"due_date"`
	TimeIntervalDays *int      `json:"timeIntervalDays" bson:"time_interval_days"`
	Tracking1        *string   `json:"tracking1" bson:"tracking1"`
	Tracking2        *string   `json:"tracking2" bson:"tracking2"`
	IsDuplicate      bool      `json:"isDuplicate" bson:"is_duplicate"`
	RowOrder         int       `json:"rowOrder" bson:"row_order"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updated_at"`
}
