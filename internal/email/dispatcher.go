package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/outreachpass/passhub/internal/issuance"
	"github.com/outreachpass/passhub/internal/tracking"
)

// ContextStore records the dispatch context the tracking endpoints read back.
type ContextStore interface {
	Save(ctx context.Context, messageID string, dc tracking.DispatchContext) error
}

// Dispatcher composes the issuance message, rewrites its links through the
// tracking endpoints, records the dispatch context, and sends.
type Dispatcher struct {
	sender Sender
	store  ContextStore
	base   string
}

func NewDispatcher(sender Sender, store ContextStore, publicBaseURL string) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		store:  store,
		base:   publicBaseURL,
	}
}

type DispatchInput struct {
	JobID   string
	Compose ComposeInput
}

// Dispatch sends the issuance email and returns the message id. The id is a
// pure function of the job id, so a redelivered job reuses it and tracking
// hits collapse onto one dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchInput) (string, error) {
	messageID := MessageIDFor(in.JobID)

	msg, err := Compose(in.Compose)
	if err != nil {
		return "", issuance.Permanent(fmt.Errorf("compose: %w", err))
	}

	rewritten, err := RewriteLinks(msg.HTML, d.base, messageID)
	if err != nil {
		return "", issuance.Permanent(fmt.Errorf("rewrite links: %w", err))
	}
	msg.HTML = rewritten
	msg.MessageID = messageID

	dc := tracking.DispatchContext{
		JobID:     in.JobID,
		CardID:    in.Compose.Card.ID,
		TenantID:  in.Compose.Card.TenantID,
		EventID:   in.Compose.Event.ID,
		Recipient: in.Compose.Card.Email,
		SentAt:    time.Now().UTC(),
	}
	if err := d.store.Save(ctx, messageID, dc); err != nil {
		return "", issuance.Transient(fmt.Errorf("save dispatch context: %w", err))
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return "", err
	}

	slog.Default().InfoContext(ctx, "issuance email sent",
		"job_id", in.JobID,
		"message_id", messageID,
		"recipient", in.Compose.Card.Email,
	)

	return messageID, nil
}
