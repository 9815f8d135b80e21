package models

import "time"

// Feedback is a citizen's rating of the official who handled an application.
// Verified is stored but never set by the service.
type Feedback struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	CitizenID     string    `json:"citizenId"`
	OfficialID    *string   `json:"officialId,omitempty"`
	Rating        int       `json:"rating"`
	Comment       *string   `json:"comment,omitempty"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// OfficialRating summarises feedback received by an official.
type OfficialRating struct {
	OfficialID    string  `json:"officialId"`
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int     `json:"totalRatings"`
}
