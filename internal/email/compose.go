package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/event"
)

// ComposeInput carries everything the issuance email needs. Either wallet
// link may be empty when that platform failed or is disabled; the message
// renders whatever succeeded.
type ComposeInput struct {
	Card  card.Card
	Event event.Event

	CardURL       string
	GoogleSaveURL string
	ApplePass     []byte
}

var bodyTmpl = template.Must(template.New("issue").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Your {{.EventName}} pass is ready</h2>
  <p>Hi {{.Name}},</p>
  <p>Your digital contact card for <strong>{{.EventName}}</strong> has been issued.</p>
  {{if .GoogleSaveURL}}<p><a href="{{.GoogleSaveURL}}">Add to Google Wallet</a></p>{{end}}
  {{if .HasApplePass}}<p>Your Apple Wallet pass is attached. Open it on your iPhone to add it.</p>{{end}}
  <p><a href="{{.CardURL}}">View your contact card</a></p>
  <p>See you at the event!</p>
</body>
</html>`))

// Compose renders the issuance message. Tracking rewrites happen afterwards
// in the dispatcher, once the message id is known.
func Compose(in ComposeInput) (Message, error) {
	var buf bytes.Buffer
	err := bodyTmpl.Execute(&buf, struct {
		Name          string
		EventName     string
		CardURL       string
		GoogleSaveURL string
		HasApplePass  bool
	}{
		Name:          in.Card.DisplayName,
		EventName:     in.Event.Name,
		CardURL:       in.CardURL,
		GoogleSaveURL: in.GoogleSaveURL,
		HasApplePass:  len(in.ApplePass) > 0,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}

	msg := Message{
		To:      in.Card.Email,
		Subject: fmt.Sprintf("Your %s pass is ready", in.Event.Name),
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Your %s pass is ready. View your card: %s", in.Event.Name, in.CardURL),
	}

	if len(in.ApplePass) > 0 {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    "pass.pkpass",
			ContentType: "application/vnd.apple.pkpass",
			Data:        in.ApplePass,
		})
	}

	return msg, nil
}
