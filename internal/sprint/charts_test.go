package sprint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprint-insights/backend/internal/models"
)

func TestLoadStats(t *testing.T) {
	stats, err := LoadStats()
	require.NoError(t, err)

	assert.Len(t, stats.Assignees, 6)
	assert.Equal(t, 58, stats.TaskStatus.Total)
	assert.Len(t, stats.DailyChanges, 7)

	// fresh copy per call
	stats.Assignees[0].Assignee = "changed"
	again, err := LoadStats()
	require.NoError(t, err)
	assert.Equal(t, "Иванов И.", again.Assignees[0].Assignee)
}

func TestParseStats_Invalid(t *testing.T) {
	_, err := ParseStats([]byte("{not json"))
	assert.Error(t, err)
}

func TestAssigneeBars(t *testing.T) {
	stats := &Stats{Assignees: []AssigneeStat{
		{Assignee: "A", Estimation: 10, Spent: 12, Procent: 20},
		{Assignee: "B", Estimation: 5, Spent: 0, Procent: -100},
	}}

	want := []models.AssigneeBar{
		{Name: "A", Estimation: 10, Spent: 12},
		{Name: "B", Estimation: 5, Spent: 0},
	}
	if diff := cmp.Diff(want, AssigneeBars(stats)); diff != "" {
		t.Errorf("AssigneeBars mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskStatusSlices(t *testing.T) {
	stats := &Stats{TaskStatus: TaskStatus{Total: 58, Done: 39, Backlogged: 4, Removed: 5}}

	want := []models.PieSlice{
		{Name: "Done", Value: 39},
		{Name: "Backlogged", Value: 4},
		{Name: "Removed", Value: 5},
		{Name: "In Progress", Value: 10},
	}
	if diff := cmp.Diff(want, TaskStatusSlices(stats)); diff != "" {
		t.Errorf("TaskStatusSlices mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskStatusSlices_NegativeRemainderPassesThrough(t *testing.T) {
	stats := &Stats{TaskStatus: TaskStatus{Total: 3, Done: 2, Backlogged: 1, Removed: 1}}
	slices := TaskStatusSlices(stats)
	assert.Equal(t, -1, slices[3].Value)
}

func TestDailyChangeSeries_NumericOrder(t *testing.T) {
	stats := &Stats{DailyChanges: map[string]DayChange{
		"10": {Added: 1},
		"2":  {Added: 2, Removed: 1},
		"1":  {Added: 3},
		"x":  {Removed: 4},
	}}

	want := []models.DailyChange{
		{Day: "Day 1", Added: 3},
		{Day: "Day 2", Added: 2, Removed: 1},
		{Day: "Day 10", Added: 1},
		{Day: "Day x", Removed: 4},
	}
	if diff := cmp.Diff(want, DailyChangeSeries(stats)); diff != "" {
		t.Errorf("DailyChangeSeries mismatch (-want +got):\n%s", diff)
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		procent float64
		want    models.DeviationBand
	}{
		{0, models.DeviationLow},
		{10, models.DeviationLow},
		{-10, models.DeviationLow},
		{10.1, models.DeviationMedium},
		{-20, models.DeviationMedium},
		{20.5, models.DeviationHigh},
		{60, models.DeviationHigh},
		{-60.01, models.DeviationNone},
		{100, models.DeviationNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.procent), "procent %v", tt.procent)
	}
}

func TestDeviationRows(t *testing.T) {
	stats := &Stats{Assignees: []AssigneeStat{
		{Assignee: "A", Procent: -8.3},
		{Assignee: "B", Procent: 100},
	}}

	want := []models.DeviationRow{
		{Assignee: "A", Procent: -8.3, Display: "-8.3%", Band: models.DeviationLow},
		{Assignee: "B", Procent: 100, Display: "100.0%", Band: models.DeviationNone},
	}
	if diff := cmp.Diff(want, DeviationRows(stats)); diff != "" {
		t.Errorf("DeviationRows mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeOverview(t *testing.T) {
	t.Run("fixture", func(t *testing.T) {
		stats, err := LoadStats()
		require.NoError(t, err)

		got := ComputeOverview(stats)
		assert.Equal(t, models.Overview{TotalTasks: 58, CompletionRate: 67, TotalStoryPoints: 146}, got)
	})

	t.Run("rounds half up", func(t *testing.T) {
		got := ComputeOverview(&Stats{TaskStatus: TaskStatus{Total: 8, Done: 1}})
		// 12.5 rounds to 13
		assert.Equal(t, 13, got.CompletionRate)
	})

	t.Run("zero total", func(t *testing.T) {
		got := ComputeOverview(&Stats{})
		assert.Equal(t, 0, got.CompletionRate)
		assert.Equal(t, 0, got.TotalTasks)
	})
}

func TestBuildChartData(t *testing.T) {
	stats, err := LoadStats()
	require.NoError(t, err)

	data := BuildChartData(stats)
	assert.Len(t, data.Assignees, 6)
	assert.Len(t, data.TaskStatus, 4)
	assert.Equal(t, "Day 1", data.DailyChanges[0].Day)
	assert.Equal(t, "Day 7", data.DailyChanges[6].Day)
	assert.Equal(t, models.DeviationHigh, data.Deviation[2].Band)
}

func TestLegacySummary(t *testing.T) {
	s := LegacySummary()
	assert.Equal(t, 146, s.TotalEstimate)
	assert.Equal(t, [2]int{47, 0}, s.ChangeByDays["day1"])
	assert.Len(t, s.ChangeByDays, 7)
}
