package models

import "time"

// BlockchainHash is the audit digest recorded when an application is approved.
// BlockNumber is a global counter; records are not chained to each other.
type BlockchainHash struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	DocumentHash  string    `json:"documentHash"`
	BlockNumber   int       `json:"blockNumber"`
	Timestamp     time.Time `json:"timestamp"`
}

// Delay alert recipient kinds.
const (
	AlertRecipientCitizen  = "citizen"
	AlertRecipientOfficial = "official"
)

// DelayAlert records when a delay notification was last sent for an
// application and recipient kind.
type DelayAlert struct {
	ApplicationID  string    `json:"applicationId"`
	Kind           string    `json:"kind"`
	LastNotifiedAt time.Time `json:"lastNotifiedAt"`
}

// Key identifies the alert in the ledger.
func (d DelayAlert) Key() string {
	return d.ApplicationID + ":" + d.Kind
}
