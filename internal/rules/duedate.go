// Package rules holds the measure business rules the importer consults.
package rules

import (
	"strings"
	"time"

	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

// DefaultIntervals maps a lower-cased measure status to its follow-up
// interval in days.
var DefaultIntervals = map[string]int{
	"not addressed":                        7,
	"patient called to schedule awv":       7,
	"awv scheduled":                        30,
	"awv completed":                        365,
	"patient declined awv":                 365,
	"screening test ordered":               30,
	"screening test completed":             365,
	"screening discussed":                  14,
	"patient declined screening":           365,
	"colon cancer screen ordered":          30,
	"colon cancer screen completed":        365,
	"diabetic eye exam scheduled":          30,
	"diabetic eye exam completed":          365,
	"hgba1c ordered":                       14,
	"hgba1c at goal":                       90,
	"hgba1c not at goal":                   30,
	"blood pressure at goal":               180,
	"blood pressure not at goal":           30,
	"scheduled call back - bp at goal":     180,
	"scheduled call back - bp not at goal": 30,
}

// IntervalCalculator computes due dates as status date plus a per-status
// interval. A date in tracking1 (a scheduled appointment) takes precedence.
type IntervalCalculator struct {
	Intervals map[string]int
}

func NewIntervalCalculator() *IntervalCalculator {
	return &IntervalCalculator{Intervals: DefaultIntervals}
}

func (c *IntervalCalculator) CalculateDueDate(statusDate, measureStatus, tracking1, tracking2 *string) models.DueDate {
	if statusDate == nil || measureStatus == nil {
		return models.DueDate{}
	}
	start, err := time.Parse(utils.ISODate, *statusDate)
	if err != nil {
		return models.DueDate{}
	}

	if tracking1 != nil {
		if iso, err := utils.ParseDate(*tracking1); err == nil {
			due, _ := time.Parse(utils.ISODate, iso)
			if !due.Before(start) {
				days := int(due.Sub(start).Hours() / 24)
				return models.DueDate{DueDate: &iso, TimeIntervalDays: &days}
			}
		}
	}

	days, ok := c.Intervals[strings.ToLower(strings.TrimSpace(*measureStatus))]
	if !ok {
		return models.DueDate{}
	}
	due := utils.FormatDate(start.AddDate(0, 0, days))
	return models.DueDate{DueDate: &due, TimeIntervalDays: &days}
}
