package jobs

import (
	"encoding/json"
	"time"
)

// IssuePassPayload describes one request to produce and deliver a digital
// pass for a card. Keep it minimal and ID-based; the worker loads the card
// and event context from the store at claim time, so an issuance always sees
// the card revision current when processing starts.
type IssuePassPayload struct {
	CardID         string         `json:"cardId"`
	AttendeeID     string         `json:"attendeeId,omitempty"`
	TenantID       string         `json:"tenantId"`
	EventID        string         `json:"eventId"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod"`
	RequestedBy    string         `json:"requestedBy,omitempty"`
	RequestedAt    time.Time      `json:"requestedAt"`
	RequestID      string         `json:"requestId,omitempty"`
}

func (p IssuePassPayload) ToJSONRaw() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
