package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BartekS5/caregap/pkg/utils"
)

func TestIntervalCalculator_CalculateDueDate(t *testing.T) {
	calc := NewIntervalCalculator()

	tests := []struct {
		name      string
		date      *string
		status    *string
		tracking1 *string
		wantDue   string
		wantDays  int
	}{
		{"awv completed", utils.Ptr("2024-06-01"), utils.Ptr("AWV completed"), nil, "2025-06-01", 365},
		{"case insensitive", utils.Ptr("2024-06-01"), utils.Ptr("HgbA1c NOT at goal"), nil, "2024-07-01", 30},
		{"not addressed", utils.Ptr("2024-06-01"), utils.Ptr(" Not Addressed "), nil, "2024-06-08", 7},
		{"tracking date wins", utils.Ptr("2024-06-01"), utils.Ptr("AWV scheduled"), utils.Ptr("6/15/2024"), "2024-06-15", 14},
		{"tracking before status ignored", utils.Ptr("2024-06-01"), utils.Ptr("AWV scheduled"), utils.Ptr("2024-05-01"), "2024-07-01", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.CalculateDueDate(tt.date, tt.status, tt.tracking1, nil)
			if assert.NotNil(t, got.DueDate) && assert.NotNil(t, got.TimeIntervalDays) {
				assert.Equal(t, tt.wantDue, *got.DueDate)
				assert.Equal(t, tt.wantDays, *got.TimeIntervalDays)
			}
		})
	}
}

func TestIntervalCalculator_NoDueDate(t *testing.T) {
	calc := NewIntervalCalculator()

	assert.Nil(t, calc.CalculateDueDate(nil, utils.Ptr("AWV completed"), nil, nil).DueDate)
	assert.Nil(t, calc.CalculateDueDate(utils.Ptr("2024-06-01"), nil, nil, nil).DueDate)
	assert.Nil(t, calc.CalculateDueDate(utils.Ptr("2024-06-01"), utils.Ptr("something else"), nil, nil).DueDate)
	assert.Nil(t, calc.CalculateDueDate(utils.Ptr("not a date"), utils.Ptr("AWV completed"), nil, nil).DueDate)
}
