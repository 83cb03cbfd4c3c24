package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISODate is the layout every normalized date is rendered in.
const ISODate = "2006-01-02"

var dateLayouts = []string{
	ISODate,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006",
	"1-2-2006",
	"2006/1/2",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06",
	"1-2-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"20060102",
}

// Excel's day zero for the 1900 date system, offset for the phantom 1900-02-29.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseDate converts a spreadsheet date cell into ISO form. It accepts the
// common US and ISO layouts plus Excel serial day numbers. Two-digit years
// that would land in the future are moved back a century.
func ParseDate(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if strings.HasSuffix(layout, "06") && !strings.HasSuffix(layout, "2006") && t.Year() > time.Now().Year() {
			t = t.AddDate(-100, 0, 0)
		}
		if t.Year() < 1900 {
			return "", fmt.Errorf("unable to parse date: %s", raw)
		}
		return t.Format(ISODate), nil
	}

	if t, ok := fromExcelSerial(v); ok {
		return t.Format(ISODate), nil
	}
	return "", fmt.Errorf("unable to parse date: %s", raw)
}

func fromExcelSerial(v string) (time.Time, bool) {
	if len(v) > 8 {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 1 || f > 99999 {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(f)), true
}

// FormatDate renders t as an ISO date.
func FormatDate(t time.Time) string {
	return t.Format(ISODate)
}
