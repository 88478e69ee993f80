package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outreachpass/passhub/internal/domain/brand"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/event"
	"github.com/outreachpass/passhub/internal/issuance"
	"github.com/outreachpass/passhub/internal/observability"
)

type CardsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewCardsRepo(pool *pgxpool.Pool, prom *observability.Prom) *CardsRepo {
	return &CardsRepo{pool: pool, prom: prom}
}

func (r *CardsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// GetByID loads one card with its ordered links. Soft-deleted cards return
// ErrCardDeleted so callers can tell "gone" apart from "never existed".
func (r *CardsRepo) GetByID(ctx context.Context, id string) (card.Card, error) {
	var c card.Card
	var err error
	op := "cards.get_by_id"

	err = r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, attendee_id, user_id,
		       display_name, email, phone, org_name, title,
		       avatar_key, revision, deleted_at, created_at, updated_at
		FROM cards
		WHERE id = $1
	`, id).Scan(
			&c.ID, &c.TenantID, &c.AttendeeID, &c.UserID,
			&c.DisplayName, &c.Email, &c.Phone, &c.OrgName, &c.Title,
			&c.AvatarKey, &c.Revision, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return card.Card{}, card.ErrCardNotFound
		}
		return card.Card{}, err
	}

	if c.IsDeleted() {
		return card.Card{}, card.ErrCardDeleted
	}

	links, err := r.loadLinks(ctx, c.ID)
	if err != nil {
		return card.Card{}, err
	}
	c.Links = links

	return c, nil
}

func (r *CardsRepo) loadLinks(ctx context.Context, cardID string) ([]card.Link, error) {
	var rows pgx.Rows
	var err error
	op := "cards.load_links"

	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
		SELECT key, url, position
		FROM card_links
		WHERE card_id = $1
		ORDER BY position ASC
	`, cardID)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []card.Link
	for rows.Next() {
		var l card.Link
		if scanErr := rows.Scan(&l.Key, &l.URL, &l.Position); scanErr != nil {
			return nil, scanErr
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetIssuanceContext loads everything one issuance needs in a single round of
// queries: the card (with links), the event, and the tenant's brand. A tenant
// without a configured brand gets an empty Brand and falls through to the
// theme defaults.
func (r *CardsRepo) GetIssuanceContext(ctx context.Context, tenantID, cardID, eventID string) (issuance.IssuanceContext, error) {
	c, err := r.GetByID(ctx, cardID)
	if err != nil {
		return issuance.IssuanceContext{}, err
	}
	if c.TenantID != tenantID {
		// a payload pointing at another tenant's card is never valid
		return issuance.IssuanceContext{}, card.ErrCardNotFound
	}

	ev, err := r.getEvent(ctx, eventID)
	if err != nil {
		return issuance.IssuanceContext{}, err
	}

	b, err := r.getBrand(ctx, tenantID)
	if err != nil {
		return issuance.IssuanceContext{}, err
	}

	return issuance.IssuanceContext{Card: c, Event: ev, Brand: b}, nil
}

func (r *CardsRepo) getEvent(ctx context.Context, id string) (event.Event, error) {
	var ev event.Event
	var err error
	op := "events.get_by_id"

	err = r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, venue, start_at, end_at, created_at, updated_at
		FROM events
		WHERE id = $1
	`, id).Scan(
			&ev.ID, &ev.TenantID, &ev.Name, &ev.Venue,
			&ev.StartAt, &ev.EndAt, &ev.CreatedAt, &ev.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return ev, nil
}

func (r *CardsRepo) getBrand(ctx context.Context, tenantID string) (brand.Brand, error) {
	var b brand.Brand
	var themeRaw, overrideRaw []byte
	var err error
	op := "brands.get_by_tenant"

	err = r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, theme, override
		FROM brands
		WHERE tenant_id = $1
	`, tenantID).Scan(&b.ID, &b.TenantID, &b.Name, &themeRaw, &overrideRaw)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return brand.Brand{TenantID: tenantID}, nil
		}
		return brand.Brand{}, err
	}

	if len(themeRaw) > 0 {
		if uerr := json.Unmarshal(themeRaw, &b.Theme); uerr != nil {
			return brand.Brand{}, fmt.Errorf("decode brand theme: %w", uerr)
		}
	}
	if len(overrideRaw) > 0 {
		if uerr := json.Unmarshal(overrideRaw, &b.Override); uerr != nil {
			return brand.Brand{}, fmt.Errorf("decode brand override: %w", uerr)
		}
	}

	return b, nil
}
