package models

// AssigneeBar is one bar pair in the estimation vs spent chart.
type AssigneeBar struct {
	Name       string  `json:"name" msgpack:"name"`
	Estimation float64 `json:"estimation" msgpack:"estimation"`
	Spent      float64 `json:"spent" msgpack:"spent"`
}

// PieSlice is one segment of the task status chart.
type PieSlice struct {
	Name  string `json:"name" msgpack:"name"`
	Value int    `json:"value" msgpack:"value"`
}

// DailyChange is the number of tasks added to and removed from a sprint on one day.
type DailyChange struct {
	Day     string `json:"day" msgpack:"day"`
	Added   int    `json:"added" msgpack:"added"`
	Removed int    `json:"removed" msgpack:"removed"`
}

// DeviationBand classifies how far spent time drifted from the estimate.
type DeviationBand string

const (
	DeviationLow    DeviationBand = "low"
	DeviationMedium DeviationBand = "medium"
	DeviationHigh   DeviationBand = "high"
	DeviationNone   DeviationBand = "none"
)

// DeviationRow is one line of the deviation table.
type DeviationRow struct {
	Assignee string        `json:"assignee" msgpack:"assignee"`
	Procent  float64       `json:"procent" msgpack:"procent"`
	Display  string        `json:"display" msgpack:"display"`
	Band     DeviationBand `json:"band" msgpack:"band"`
}

// Overview holds the headline numbers shown above the charts.
type Overview struct {
	TotalTasks       int     `json:"totalTasks" msgpack:"totalTasks"`
	CompletionRate   int     `json:"completionRate" msgpack:"completionRate"`
	TotalStoryPoints float64 `json:"totalStoryPoints" msgpack:"totalStoryPoints"`
}

// ChartData bundles every chart rendered for a selected file.
type ChartData struct {
	Overview     Overview       `json:"overview" msgpack:"overview"`
	Assignees    []AssigneeBar  `json:"assignees" msgpack:"assignees"`
	TaskStatus   []PieSlice     `json:"taskStatus" msgpack:"taskStatus"`
	DailyChanges []DailyChange  `json:"dailyChanges" msgpack:"dailyChanges"`
	Deviation    []DeviationRow `json:"deviation" msgpack:"deviation"`
}

// SprintSummary is the fixed sprint digest served by the legacy endpoint.
type SprintSummary struct {
	Sprint        string           `json:"sprint"`
	TotalEstimate int              `json:"total_estimate"`
	RealEstimate  int              `json:"real_estimate"`
	TasksCount    int              `json:"tasks_count"`
	Done          int              `json:"done"`
	Removed       int              `json:"removed"`
	Backlogged    int              `json:"backlogged"`
	TotalBacklog  int              `json:"total_backlog"`
	TotalRemoved  int              `json:"total_removed"`
	ChangeByDays  map[string][2]int `json:"change_by_days"`
}
