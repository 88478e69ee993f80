package job

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNotClaimed  = errors.New("job is not claimed by this worker")
)

// Job is one issuance request. The ID doubles as the idempotency key for all
// downstream object identifiers: wallet object ids and archive serials are
// derived from it, so redelivery updates the same remote objects instead of
// creating duplicates. Rows are never deleted; terminal jobs remain as an
// audit trail.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	LockedBy    *string         `json:"lockedBy,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`

	IdempotencyKey *string `json:"idempotencyKey,omitempty"`

	// Result accumulates step outputs incrementally so a retry resumes from
	// the last persisted step instead of redoing external calls.
	Result json.RawMessage `json:"result,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	// ID is optional; producers that generate the job id client-side (the
	// required path for issuance intents) set it here.
	ID             string
	Type           string
	Payload        json.RawMessage
	RunAt          time.Time
	MaxAttempts    int
	IdempotencyKey *string
}

func New(req CreateRequest) Job {
	now := time.Now().UTC()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	maxA := req.MaxAttempts
	if maxA <= 0 {
		maxA = 5
	}

	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	return Job{
		ID:             id,
		Type:           req.Type,
		Payload:        req.Payload,
		Status:         StatusPending,
		Attempts:       0,
		MaxAttempts:    maxA,
		RunAt:          runAt,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
