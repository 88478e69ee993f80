package email

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"net/smtp"

	jwemail "github.com/jordan-wright/email"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/issuance"
)

// Attachment is a file carried inline with the message, such as the signed
// .pkpass bundle.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	MessageID   string
	Attachments []Attachment
}

// Sender delivers one message. The SMTP implementation satisfies this; tests
// substitute a fake.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPSender{
		addr: cfg.Host + ":" + cfg.Port,
		auth: auth,
		from: cfg.FromEmail,
	}
}

// Send validates the recipient before talking to the relay. A malformed
// address is permanent: no retry will make it deliverable.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return issuance.Permanent(fmt.Errorf("invalid recipient %q: %w", msg.To, err))
	}

	e := jwemail.NewEmail()
	e.From = s.from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.HTML = []byte(msg.HTML)
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}
	if msg.MessageID != "" {
		e.Headers.Set("Message-ID", "<"+msg.MessageID+">")
	}

	for _, a := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Filename, a.ContentType); err != nil {
			return issuance.Permanent(fmt.Errorf("attach %s: %w", a.Filename, err))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.Send(s.addr, s.auth); err != nil {
		// relay trouble is worth retrying
		return issuance.Transient(fmt.Errorf("smtp send: %w", err))
	}
	return nil
}
