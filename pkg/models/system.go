// Package models holds the domain types shared by the import pipeline,
// its stores and its transports.
package models

import "sort"

// Patient fields a spreadsheet column can map to.
const (
	FieldMemberName      = "memberName"
	FieldMemberDob       = "memberDob"
	FieldMemberTelephone = "memberTelephone"
	FieldMemberAddress   = "memberAddress"
)

// MeasureRole says what a measure column contributes to its quality measure.
type MeasureRole string

const (
	// MeasureRoleDate marks a date/tracking value column.
	MeasureRoleDate MeasureRole = "date"
	// MeasureRoleStatus marks a compliance status column.
	MeasureRoleStatus MeasureRole = "status"
)

// SystemConfig describes how one source system lays out its export.
// It is loaded once per import and never mutated afterwards.
type SystemConfig struct {
	ID             string                         `json:"id" yaml:"id"`
	Name           string                         `json:"name" yaml:"name"`
	PatientColumns map[string]string              `json:"patientColumns" yaml:"patientColumns"`
	MeasureColumns map[string]MeasureColumnConfig `json:"measureColumns" yaml:"measureColumns"`
	SkipColumns    []string                       `json:"skipColumns,omitempty" yaml:"skipColumns,omitempty"`
	StatusMap      map[string]StatusLabels        `json:"statusMap,omitempty" yaml:"statusMap,omitempty"`
	RequestTypes   map[string][]string            `json:"requestTypes,omitempty" yaml:"requestTypes,omitempty"`
	RequiredFields []string                       `json:"requiredFields,omitempty" yaml:"requiredFields,omitempty"`
}

// MeasureColumnConfig resolves one measure header.
type MeasureColumnConfig struct {
	RequestType    string      `json:"requestType" yaml:"requestType"`
	QualityMeasure string      `json:"qualityMeasure" yaml:"qualityMeasure"`
	Role           MeasureRole `json:"role" yaml:"role"`
}

// StatusLabels are the system-specific measure status labels for a
// compliant or non-compliant classification.
type StatusLabels struct {
	Compliant    string `json:"compliant,omitempty" yaml:"compliant,omitempty"`
	NonCompliant string `json:"nonCompliant,omitempty" yaml:"nonCompliant,omitempty"`
}

// Normalize fills derived defaults: required fields and, when absent,
// the request type -> quality measure table built from the measure columns.
func (c *SystemConfig) Normalize() {
	if len(c.RequiredFields) == 0 {
		c.RequiredFields = []string{FieldMemberName, FieldMemberDob}
	}
	if len(c.RequestTypes) > 0 {
		return
	}
	seen := make(map[string]map[string]bool)
	for _, mc := range c.MeasureColumns {
		if seen[mc.RequestType] == nil {
			seen[mc.RequestType] = make(map[string]bool)
		}
		seen[mc.RequestType][mc.QualityMeasure] = true
	}
	c.RequestTypes = make(map[string][]string, len(seen))
	for rt, qms := range seen {
		list := make([]string, 0, len(qms))
		for qm := range qms {
			list = append(list, qm)
		}
		sort.Strings(list)
		c.RequestTypes[rt] = list
	}
}

// IsSkipped reports whether header is on the explicit skip list.
func (c *SystemConfig) IsSkipped(header string) bool {
	for _, s := range c.SkipColumns {
		if s == header {
			return true
		}
	}
	return false
}

// HasRequestType reports whether rt is one of the system's request types.
func (c *SystemConfig) HasRequestType(rt string) bool {
	_, ok := c.RequestTypes[rt]
	return ok
}

// MeasureBelongsTo reports whether qm is configured under request type rt.
func (c *SystemConfig) MeasureBelongsTo(rt, qm string) bool {
	for _, m := range c.RequestTypes[rt] {
		if m == qm {
			return true
		}
	}
	return false
}

// HeadersForField returns the configured headers mapping to a patient field, sorted.
func (c *SystemConfig) HeadersForField(field string) []string {
	var headers []string
	for h, f := range c.PatientColumns {
		if f == field {
			headers = append(headers, h)
		}
	}
	sort.Strings(headers)
	return headers
}
