package models

import "time"

// SystemActor is the UpdatedBy value for monitor driven changes.
const SystemActor = "system"

// ApplicationHistory is one append-only lifecycle entry.
type ApplicationHistory struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"applicationId"`
	Status        ApplicationStatus `json:"status"`
	UpdatedBy     string            `json:"updatedBy"`
	Comment       *string           `json:"comment,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
