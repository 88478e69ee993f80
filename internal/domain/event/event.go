package event

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("event not found")

type Event struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	Name     string    `json:"name"`
	Venue    string    `json:"venue,omitempty"`
	StartAt  time.Time `json:"startAt"`
	// Wallet passes expire at EndAt so stale passes self-invalidate without
	// a push update.
	EndAt     time.Time `json:"endAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
