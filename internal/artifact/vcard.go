package artifact

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	govcard "github.com/emersion/go-vcard"

	"github.com/outreachpass/passhub/internal/domain/card"
)

var ErrMissingDisplayName = errors.New("card has no display name")

// VCard serializes a card at its current revision. REV carries the card
// revision counter rather than a wall-clock stamp so two exports of the same
// revision agree, and a consumer can tell which export is newer.
func VCard(c card.Card) ([]byte, error) {
	if strings.TrimSpace(c.DisplayName) == "" {
		return nil, ErrMissingDisplayName
	}

	vc := make(govcard.Card)

	vc.SetValue(govcard.FieldFormattedName, c.DisplayName)

	given, family := splitName(c.DisplayName)
	vc.SetName(&govcard.Name{
		GivenName:  given,
		FamilyName: family,
	})

	if c.Email != "" {
		vc.Add(govcard.FieldEmail, &govcard.Field{
			Value:  c.Email,
			Params: govcard.Params{govcard.ParamType: {"INTERNET"}},
		})
	}

	if c.Phone != "" {
		vc.Add(govcard.FieldTelephone, &govcard.Field{
			Value:  c.Phone,
			Params: govcard.Params{govcard.ParamType: {"CELL"}},
		})
	}

	if c.OrgName != "" {
		vc.SetValue(govcard.FieldOrganization, c.OrgName)
	}

	if c.Title != "" {
		vc.SetValue(govcard.FieldTitle, c.Title)
	}

	// one URL per link, typed by the link key so importers can label them
	for _, l := range c.Links {
		if l.URL == "" {
			continue
		}
		vc.Add(govcard.FieldURL, &govcard.Field{
			Value:  l.URL,
			Params: govcard.Params{govcard.ParamType: {l.Key}},
		})
	}

	vc.SetValue(govcard.FieldRevision, strconv.Itoa(c.Revision))

	govcard.ToV4(vc)

	var buf bytes.Buffer
	if err := govcard.NewEncoder(&buf).Encode(vc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// splitName splits "First Rest..." into given/family; a single token becomes
// the family name, matching how most address books import mononyms.
func splitName(display string) (given, family string) {
	parts := strings.SplitN(strings.TrimSpace(display), " ", 2)

	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", parts[0]
}
