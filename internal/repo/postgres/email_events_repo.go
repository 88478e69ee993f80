package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outreachpass/passhub/internal/observability"
)

// EmailEvent is one tracking hit (an open or a click) attributed to a sent
// message. The audit trail outlives the redis dispatch context.
type EmailEvent struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	JobID     string    `json:"jobId"`
	CardID    string    `json:"cardId"`
	Kind      string    `json:"kind"` // "open" | "click"
	LinkType  string    `json:"linkType,omitempty"`
	TargetURL string    `json:"targetUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type EmailEventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEmailEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EmailEventsRepo {
	return &EmailEventsRepo{pool: pool, prom: prom}
}

func (r *EmailEventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *EmailEventsRepo) Record(ctx context.Context, ev EmailEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	op := "email_events.record"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO email_events (id, message_id, job_id, card_id, kind, link_type, target_url, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ev.ID, ev.MessageID, ev.JobID, ev.CardID, ev.Kind, ev.LinkType, ev.TargetURL, ev.CreatedAt)
		return err
	})
}

// ListByMessage returns the hits for one message, oldest first.
func (r *EmailEventsRepo) ListByMessage(ctx context.Context, messageID string) ([]EmailEvent, error) {
	var rows pgx.Rows
	var err error

	op := "email_events.list_by_message"
	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
		SELECT id, message_id, job_id, card_id, kind, link_type, target_url, created_at
		FROM email_events
		WHERE message_id = $1
		ORDER BY created_at ASC
	`, messageID)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmailEvent
	for rows.Next() {
		var ev EmailEvent
		if scanErr := rows.Scan(&ev.ID, &ev.MessageID, &ev.JobID, &ev.CardID, &ev.Kind, &ev.LinkType, &ev.TargetURL, &ev.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
