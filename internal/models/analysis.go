package models

import "time"

// SessionStatus represents the status of an analysis session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// AnalysisSession tracks analysis of one folder's CSV exports.
type AnalysisSession struct {
	ID               string        `json:"id"`
	UserID           string        `json:"-"`
	Folder           string        `json:"folder"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	Stage            string        `json:"stage,omitempty"`
	FileCount        int           `json:"fileCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	Errors           []string      `json:"errors,omitempty"`
	Warnings         []string      `json:"warnings,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// NewAnalysisSession creates a session in pending status.
func NewAnalysisSession(id, userID, folder string) *AnalysisSession {
	return &AnalysisSession{
		ID:        id,
		UserID:    userID,
		Folder:    folder,
		Status:    SessionStatusPending,
		Errors:    make([]string, 0),
		CreatedAt: time.Now(),
	}
}

// SprintMetric is the hour breakdown for one sprint.
type SprintMetric struct {
	SprintName      string  `json:"sprintName" msgpack:"sprintName"`
	ToDoHours       float64 `json:"toDoHours" msgpack:"toDoHours"`
	InProgressHours float64 `json:"inProgressHours" msgpack:"inProgressHours"`
	DoneHours       float64 `json:"doneHours" msgpack:"doneHours"`
}

// AssigneeDeviation compares estimated and spent hours for one assignee.
// Category is -1 when nothing was spent, otherwise a signed band of 0, 10, 20, 60 or 100.
type AssigneeDeviation struct {
	Assignee   string `json:"assignee" msgpack:"assignee"`
	Estimation int    `json:"estimation" msgpack:"estimation"`
	Spent      int    `json:"spent" msgpack:"spent"`
	Remaining  int    `json:"remaining" msgpack:"remaining"`
	Procent    int    `json:"procent" msgpack:"procent"`
	Category   int    `json:"category" msgpack:"category"`
}

// StatusShare is the share of entities in one status, in percent.
type StatusShare struct {
	Status  string  `json:"status" msgpack:"status"`
	Count   int     `json:"count" msgpack:"count"`
	Percent float64 `json:"percent" msgpack:"percent"`
}

// AnalysisResult is produced by a completed analysis session.
type AnalysisResult struct {
	Sprints      []SprintMetric      `json:"sprints" msgpack:"sprints"`
	Assignees    []AssigneeDeviation `json:"assignees" msgpack:"assignees"`
	Statuses     []StatusShare       `json:"statuses" msgpack:"statuses"`
	SourceFiles  []string            `json:"sourceFiles" msgpack:"sourceFiles"`
	EntityCount  int                 `json:"entityCount" msgpack:"entityCount"`
	HistoryCount int                 `json:"historyCount" msgpack:"historyCount"`
}
