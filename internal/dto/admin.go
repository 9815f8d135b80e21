package dto

import "time"

// AdminStats is the dashboard summary.
type AdminStats struct {
	TotalApplications int            `json:"totalApplications"`
	ByStatus          map[string]int `json:"byStatus"`
	ByDepartment      map[string]int `json:"byDepartment"`
	Escalated         int            `json:"escalated"`
	Solved            int            `json:"solved"`
	Overdue           int            `json:"overdue"`
	Officials         []OfficialStat `json:"officials"`
	Users             map[string]int `json:"users"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}

// OfficialStat is one leaderboard row.
type OfficialStat struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	FullName      string  `json:"fullName"`
	Department    string  `json:"department"`
	Rating        float64 `json:"rating"`
	AssignedCount int     `json:"assignedCount"`
	SolvedCount   int     `json:"solvedCount"`
}

// DepartmentRequest creates a department.
type DepartmentRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Image       string `json:"image"`
}

// WarningRequest sends a warning to an official.
type WarningRequest struct {
	OfficialID string `json:"officialId" validate:"required"`
	Message    string `json:"message" validate:"required,min=3,max=2000"`
}

// ExportFormat selects the rendered document type.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult is a rendered document ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// MonitorReport summarises one monitor sweep.
type MonitorReport struct {
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Scanned      int           `json:"scanned"`
	Delayed      int           `json:"delayed"`
	AlertsSent   int           `json:"alertsSent"`
	Suppressed   int           `json:"suppressed"`
	AutoApproved int           `json:"autoApproved"`
	Errors       int           `json:"errors"`
}
