package sprint

import (
	"math"
	"sort"

	"github.com/sprint-insights/backend/internal/models"
)

const secondsPerHour = 3600

// NoTimeSpent is the deviation category of an assignee who logged nothing.
const NoTimeSpent = -1

// AssigneeTotals are the summed estimation and spent seconds of one assignee.
type AssigneeTotals struct {
	Assignee          string
	EstimationSeconds float64
	SpentSeconds      float64
}

// toHours rounds seconds to whole hours, halves to even.
func toHours(seconds float64) int {
	return int(math.RoundToEven(seconds / secondsPerHour))
}

// DeviationCategory buckets the drift of spent from estimated hours into a
// signed band of 0, 10, 20, 60 or 100 percent.
func DeviationCategory(estimation, spent int) int {
	if spent == 0 {
		return NoTimeSpent
	}
	if estimation == 0 {
		return 100
	}
	pct := float64(spent-estimation) / float64(estimation) * 100
	sign := 1
	if pct < 0 {
		sign = -1
	}
	switch abs := math.Abs(pct); {
	case abs == 0:
		return 0
	case abs <= 10:
		return 10 * sign
	case abs <= 20:
		return 20 * sign
	case abs <= 60:
		return 60 * sign
	default:
		return 100 * sign
	}
}

// NewAssigneeDeviation converts summed seconds into the hour-based deviation row.
func NewAssigneeDeviation(t AssigneeTotals) models.AssigneeDeviation {
	est := toHours(t.EstimationSeconds)
	spent := toHours(t.SpentSeconds)

	procent := 0
	if est != 0 {
		procent = int(math.RoundToEven(float64(spent-est) / float64(est) * 100))
	}

	return models.AssigneeDeviation{
		Assignee:   t.Assignee,
		Estimation: est,
		Spent:      spent,
		Remaining:  est - spent,
		Procent:    procent,
		Category:   DeviationCategory(est, spent),
	}
}

// AssigneeDeviations builds deviation rows for assignees with a positive
// estimate, sorted by assignee name.
func AssigneeDeviations(totals []AssigneeTotals) []models.AssigneeDeviation {
	rows := make([]models.AssigneeDeviation, 0, len(totals))
	for _, t := range totals {
		if t.EstimationSeconds <= 0 {
			continue
		}
		rows = append(rows, NewAssigneeDeviation(t))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Assignee < rows[j].Assignee })
	return rows
}
