// Package sprint turns sprint CSV exports into chart datasets and sprint metrics.
package sprint

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/sprint-insights/backend/internal/models"
)

//go:embed data/sprint-stats.json
var sprintStatsJSON []byte

// AssigneeStat is one assignee record of the chart fixture.
type AssigneeStat struct {
	Assignee   string  `json:"assignee"`
	Estimation float64 `json:"estimation"`
	Spent      float64 `json:"spent"`
	Procent    float64 `json:"procent"`
}

// TaskStatus holds the task counters of a sprint.
type TaskStatus struct {
	Total      int `json:"total"`
	Done       int `json:"done"`
	Backlogged int `json:"backlogged"`
	Removed    int `json:"removed"`
}

// DayChange is the number of tasks added and removed on one sprint day.
type DayChange struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Stats is the raw chart dataset.
type Stats struct {
	Assignees    []AssigneeStat       `json:"assignees"`
	TaskStatus   TaskStatus           `json:"taskStatus"`
	DailyChanges map[string]DayChange `json:"dailyChanges"`
}

// LoadStats returns the embedded chart dataset.
// Every call returns a fresh copy, so callers may modify it.
func LoadStats() (*Stats, error) {
	return ParseStats(sprintStatsJSON)
}

// ParseStats decodes a chart dataset.
func ParseStats(data []byte) (*Stats, error) {
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode sprint stats: %w", err)
	}
	return &stats, nil
}

// AssigneeBars maps assignees to estimation/spent bar pairs in dataset order.
func AssigneeBars(s *Stats) []models.AssigneeBar {
	bars := make([]models.AssigneeBar, 0, len(s.Assignees))
	for _, a := range s.Assignees {
		bars = append(bars, models.AssigneeBar{
			Name:       a.Assignee,
			Estimation: a.Estimation,
			Spent:      a.Spent,
		})
	}
	return bars
}

// TaskStatusSlices builds the status pie. In Progress is whatever is left of
// the total once done, backlogged and removed tasks are taken out.
func TaskStatusSlices(s *Stats) []models.PieSlice {
	ts := s.TaskStatus
	return []models.PieSlice{
		{Name: "Done", Value: ts.Done},
		{Name: "Backlogged", Value: ts.Backlogged},
		{Name: "Removed", Value: ts.Removed},
		{Name: "In Progress", Value: ts.Total - (ts.Done + ts.Backlogged + ts.Removed)},
	}
}

// DailyChangeSeries orders the per-day changes by day number. Keys that are
// not numbers sort after the numbered days.
func DailyChangeSeries(s *Stats) []models.DailyChange {
	days := make([]string, 0, len(s.DailyChanges))
	for day := range s.DailyChanges {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		a, errA := strconv.Atoi(days[i])
		b, errB := strconv.Atoi(days[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return days[i] < days[j]
		}
	})

	series := make([]models.DailyChange, 0, len(days))
	for _, day := range days {
		c := s.DailyChanges[day]
		series = append(series, models.DailyChange{
			Day:     "Day " + day,
			Added:   c.Added,
			Removed: c.Removed,
		})
	}
	return series
}

// BandFor classifies a deviation percentage by its magnitude.
func BandFor(procent float64) models.DeviationBand {
	abs := math.Abs(procent)
	switch {
	case abs <= 10:
		return models.DeviationLow
	case abs <= 20:
		return models.DeviationMedium
	case abs <= 60:
		return models.DeviationHigh
	default:
		return models.DeviationNone
	}
}

// DeviationRows builds the deviation table.
func DeviationRows(s *Stats) []models.DeviationRow {
	rows := make([]models.DeviationRow, 0, len(s.Assignees))
	for _, a := range s.Assignees {
		rows = append(rows, models.DeviationRow{
			Assignee: a.Assignee,
			Procent:  a.Procent,
			Display:  fmt.Sprintf("%.1f%%", a.Procent),
			Band:     BandFor(a.Procent),
		})
	}
	return rows
}

// ComputeOverview returns total tasks, completion rate and story points.
func ComputeOverview(s *Stats) models.Overview {
	var points float64
	for _, a := range s.Assignees {
		points += a.Estimation
	}

	rate := 0
	if s.TaskStatus.Total > 0 {
		rate = int(math.Floor(float64(s.TaskStatus.Done)/float64(s.TaskStatus.Total)*100 + 0.5))
	}

	return models.Overview{
		TotalTasks:       s.TaskStatus.Total,
		CompletionRate:   rate,
		TotalStoryPoints: points,
	}
}

// BuildChartData runs every transform over s.
func BuildChartData(s *Stats) *models.ChartData {
	return &models.ChartData{
		Overview:     ComputeOverview(s),
		Assignees:    AssigneeBars(s),
		TaskStatus:   TaskStatusSlices(s),
		DailyChanges: DailyChangeSeries(s),
		Deviation:    DeviationRows(s),
	}
}

// LegacySummary is the fixed digest of the sample sprint.
func LegacySummary() models.SprintSummary {
	return models.SprintSummary{
		Sprint:        "Спринт 2024.3.6.NPP Shared Sprint",
		TotalEstimate: 146,
		RealEstimate:  100,
		TasksCount:    58,
		Done:          39,
		Removed:       5,
		Backlogged:    4,
		TotalBacklog:  39,
		TotalRemoved:  26,
		ChangeByDays: map[string][2]int{
			"day1": {47, 0},
			"day2": {8, 3},
			"day3": {12, 1},
			"day4": {3, 5},
			"day5": {2, 4},
			"day6": {0, 0},
			"day7": {0, 0},
		},
	}
}
