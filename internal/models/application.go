package models

import (
	"fmt"
	"time"
)

// ApplicationStatus is the closed set of lifecycle states.
type ApplicationStatus string

const (
	StatusSubmitted    ApplicationStatus = "Submitted"
	StatusAssigned     ApplicationStatus = "Assigned"
	StatusInProgress   ApplicationStatus = "In Progress"
	StatusApproved     ApplicationStatus = "Approved"
	StatusRejected     ApplicationStatus = "Rejected"
	StatusAutoApproved ApplicationStatus = "Auto-Approved"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ApplicationStatus{
	StatusSubmitted,
	StatusAssigned,
	StatusInProgress,
	StatusApproved,
	StatusRejected,
	StatusAutoApproved,
}

// transitions is the adjacency table of permitted status changes.
var transitions = map[ApplicationStatus][]ApplicationStatus{
	StatusSubmitted:  {StatusAssigned, StatusAutoApproved},
	StatusAssigned:   {StatusAssigned, StatusInProgress, StatusApproved, StatusRejected, StatusAutoApproved},
	StatusInProgress: {StatusAssigned, StatusInProgress, StatusApproved, StatusRejected, StatusAutoApproved},
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (ApplicationStatus, error) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// CanTransition reports whether from -> to is an allowed edge.
func (s ApplicationStatus) CanTransition(to ApplicationStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusAutoApproved
}

// IsDecision reports whether the status records a final decision timestamp.
func (s ApplicationStatus) IsDecision() bool {
	return s.IsTerminal()
}

// Approves reports whether reaching s produces an audit hash.
func (s ApplicationStatus) Approves() bool {
	return s == StatusApproved || s == StatusAutoApproved
}

// Priority of an application.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Application is a citizen request tracked through its lifecycle.
type Application struct {
	ID               string                 `json:"id"`
	TrackingID       string                 `json:"trackingId"`
	ApplicationType  string                 `json:"applicationType"`
	Department       string                 `json:"department"`
	Status           ApplicationStatus      `json:"status"`
	CitizenID        string                 `json:"citizenId"`
	OfficialID       *string                `json:"officialId"`
	SubmittedAt      time.Time              `json:"submittedAt"`
	LastUpdatedAt    time.Time              `json:"lastUpdatedAt"`
	AssignedAt       *time.Time             `json:"assignedAt,omitempty"`
	ApprovedAt       *time.Time             `json:"approvedAt,omitempty"`
	AutoApprovalDate time.Time              `json:"autoApprovalDate"`
	EscalationLevel  int                    `json:"escalationLevel"`
	IsSolved         bool                   `json:"isSolved"`
	Priority         Priority               `json:"priority"`
	Remarks          *string                `json:"remarks,omitempty"`
	Data             map[string]interface{} `json:"data,omitempty"`
	Image            *string                `json:"image,omitempty"`
}

// Clone returns a deep copy so callers never alias store state.
func (a Application) Clone() Application {
	a.OfficialID = cloneString(a.OfficialID)
	a.AssignedAt = cloneTime(a.AssignedAt)
	a.ApprovedAt = cloneTime(a.ApprovedAt)
	a.Remarks = cloneString(a.Remarks)
	a.Image = cloneString(a.Image)
	if a.Data != nil {
		data := make(map[string]interface{}, len(a.Data))
		for k, v := range a.Data {
			data[k] = v
		}
		a.Data = data
	}
	return a
}

// HasOfficial reports whether an official currently owns the application.
func (a Application) HasOfficial() bool {
	return a.OfficialID != nil && *a.OfficialID != ""
}

// ApplicationFilter narrows list queries.
type ApplicationFilter struct {
	CitizenID  string
	OfficialID string
	Department string
	Status     ApplicationStatus
	// IncludeUnassigned adds Submitted applications without an official in Department.
	IncludeUnassigned bool
}
