package models

import "time"

// Department is a government office that applications are routed to.
type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Image       *string   `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Warning is an admin reprimand addressed to an official.
type Warning struct {
	ID         string    `json:"id"`
	OfficialID string    `json:"officialId"`
	AdminID    string    `json:"adminId"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	SentAt     time.Time `json:"sentAt"`
}
