package card

import (
	"errors"
	"net/url"
	"time"
)

var (
	ErrCardNotFound = errors.New("card not found")
	ErrCardDeleted  = errors.New("card is deleted")
)

// a Link is one entry in the card's ordered link collection.
// Keys are unique within a card (e.g. "linkedin", "website").
type Link struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Card is a versioned, publicly addressable contact-card record.
// Revision increases on every content mutation and doubles as the vCard REV
// value; the issuance pipeline reads cards but never mutates them.
type Card struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	AttendeeID *string    `json:"attendeeId,omitempty"`
	UserID     *string    `json:"userId,omitempty"`

	DisplayName string  `json:"displayName"`
	Email       string  `json:"email,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	OrgName     string  `json:"orgName,omitempty"`
	Title       string  `json:"title,omitempty"`
	Links       []Link  `json:"links,omitempty"`
	AvatarKey   *string `json:"avatarKey,omitempty"`

	Revision  int        `json:"revision"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c Card) IsDeleted() bool {
	return c.DeletedAt != nil
}

// PublicURL returns the public card page for this card under the given base.
func (c Card) PublicURL(base string) string {
	u, err := url.Parse(base)

	if err != nil {
		return base + "/cards/" + c.ID
	}

	return u.JoinPath("cards", c.ID).String()
}
