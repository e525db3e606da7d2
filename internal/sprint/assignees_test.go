package sprint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/sprint-insights/backend/internal/models"
)

func TestDeviationCategory(t *testing.T) {
	tests := []struct {
		est, spent int
		want       int
	}{
		{10, 0, NoTimeSpent},
		{0, 0, NoTimeSpent},
		{10, 10, 0},
		{10, 11, 10},
		{10, 9, -10},
		{10, 12, 20},
		{10, 8, -20},
		{10, 16, 60},
		{10, 4, -60},
		{10, 17, 100},
		{10, 1, -100},
		{0, 3, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeviationCategory(tt.est, tt.spent), "est=%d spent=%d", tt.est, tt.spent)
	}
}

func TestNewAssigneeDeviation(t *testing.T) {
	got := NewAssigneeDeviation(AssigneeTotals{Assignee: "A", EstimationSeconds: 36000, SpentSeconds: 43200})
	want := models.AssigneeDeviation{Assignee: "A", Estimation: 10, Spent: 12, Remaining: -2, Procent: 20, Category: 20}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewAssigneeDeviation mismatch (-want +got):\n%s", diff)
	}
}

func TestNewAssigneeDeviation_RoundsHalfToEven(t *testing.T) {
	// 2.5h rounds to 2, 3.5h rounds to 4
	got := NewAssigneeDeviation(AssigneeTotals{Assignee: "A", EstimationSeconds: 9000, SpentSeconds: 12600})
	assert.Equal(t, 2, got.Estimation)
	assert.Equal(t, 4, got.Spent)
	assert.Equal(t, 100, got.Procent)
}

func TestNewAssigneeDeviation_ZeroHourEstimate(t *testing.T) {
	// 1000s rounds to 0h; the overrun shows in the category only
	got := NewAssigneeDeviation(AssigneeTotals{Assignee: "X", EstimationSeconds: 1000, SpentSeconds: 7200})
	want := models.AssigneeDeviation{Assignee: "X", Estimation: 0, Spent: 2, Remaining: -2, Procent: 0, Category: 100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewAssigneeDeviation mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, AssigneeDeviations([]AssigneeTotals{{Assignee: "X", EstimationSeconds: 1000, SpentSeconds: 7200}}), 1)
}

func TestAssigneeDeviations_FiltersAndSorts(t *testing.T) {
	rows := AssigneeDeviations([]AssigneeTotals{
		{Assignee: "Б", EstimationSeconds: 3600, SpentSeconds: 3600},
		{Assignee: "А", EstimationSeconds: 7200},
		{Assignee: "В", EstimationSeconds: 0, SpentSeconds: 3600},
	})
	if assert.Len(t, rows, 2) {
		assert.Equal(t, "А", rows[0].Assignee)
		assert.Equal(t, NoTimeSpent, rows[0].Category)
		assert.Equal(t, "Б", rows[1].Assignee)
	}
}
