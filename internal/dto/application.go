package dto

import "github.com/noah-isme/civic-tracker-api/internal/models"

// CreateApplicationRequest is submitted by a citizen.
type CreateApplicationRequest struct {
	ApplicationType string                 `json:"applicationType" validate:"required,min=2,max=200"`
	Priority        models.Priority        `json:"priority" validate:"omitempty,oneof=Low Normal High Urgent"`
	Remarks         string                 `json:"remarks" validate:"max=2000"`
	Data            map[string]interface{} `json:"data"`
	Image           string                 `json:"image"`
}

// UpdateStatusRequest drives a state machine transition.
type UpdateStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
}

// UpdateApplicationRequest edits the mutable bookkeeping fields.
type UpdateApplicationRequest struct {
	Priority *models.Priority `json:"priority" validate:"omitempty,oneof=Low Normal High Urgent"`
	Remarks  *string          `json:"remarks" validate:"omitempty,max=2000"`
}

// AssignRequest force-assigns an application to an official.
type AssignRequest struct {
	OfficialID string `json:"officialId" validate:"required"`
}

// SolveRequest confirms or rejects a resolution.
type SolveRequest struct {
	IsSolved *bool  `json:"isSolved" validate:"required"`
	Rating   *int   `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment  string `json:"comment" validate:"max=2000"`
}

// SolveResult reports the outcome of a solve call.
type SolveResult struct {
	Message         string              `json:"message"`
	Escalated       bool                `json:"escalated"`
	EscalationLevel int                 `json:"escalationLevel"`
	Official        *models.PublicUser  `json:"official,omitempty"`
	Feedback        *models.Feedback    `json:"feedback,omitempty"`
	Application     *models.Application `json:"application,omitempty"`
}

// FeedbackRequest rates the official who handled an application.
type FeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// LegacyFeedbackRequest is the application-agnostic feedback payload.
type LegacyFeedbackRequest struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	Rating        int    `json:"rating" validate:"required,min=1,max=5"`
	Comment       string `json:"comment" validate:"max=2000"`
}

// ApplicationDetail bundles an application with its audit trail.
type ApplicationDetail struct {
	models.Application
	History []models.ApplicationHistory `json:"history,omitempty"`
}
