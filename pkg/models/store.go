package models

import "errors"

// ErrNotFound is returned by stores when an addressed record does not exist.
var ErrNotFound = errors.New("record not found")

// DueDate is the output of the due-date calculator for one measure.
type DueDate struct {
	DueDate          *string `json:"dueDate"`
	TimeIntervalDays *int    `json:"timeIntervalDays"`
}
