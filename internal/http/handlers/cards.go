package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/outreachpass/passhub/internal/artifact"
	"github.com/outreachpass/passhub/internal/cache"
	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/utils"
)

// CardsHandler serves the public card surface: the JSON view the card page
// renders and the downloadable vCard. Both are read-heavy and cached briefly;
// cache keys embed the revision so an edit is visible on the next load.
type CardsHandler struct {
	cards CardsReader
	cache *cache.Cache
}

func NewCardsHandler(cards CardsReader, c *cache.Cache) *CardsHandler {
	return &CardsHandler{cards: cards, cache: c}
}

type cardView struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	OrgName     string      `json:"orgName,omitempty"`
	Title       string      `json:"title,omitempty"`
	Links       []card.Link `json:"links,omitempty"`
	Revision    int         `json:"revision"`
}

// GET /cards/:id
func (h *CardsHandler) GetCard(ctx *gin.Context) {
	c, ok := h.loadCard(ctx)
	if !ok {
		return
	}

	view := cardView{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Email:       c.Email,
		Phone:       c.Phone,
		OrgName:     c.OrgName,
		Title:       c.Title,
		Links:       c.Links,
		Revision:    c.Revision,
	}

	RespondJSONWithETag(ctx, http.StatusOK, view)
}

// GET /cards/:id/vcard
func (h *CardsHandler) GetVCard(ctx *gin.Context) {
	c, ok := h.loadCard(ctx)
	if !ok {
		return
	}

	key := fmt.Sprintf("vcard:%s:r%d", c.ID, c.Revision)

	if h.cache != nil {
		if b, hit := h.cache.GetBytes(key); hit {
			writeVCard(ctx, c, b)
			return
		}
	}

	vcf, err := artifact.VCard(c)
	if err != nil {
		RespondInternal(ctx, "could not render vcard")
		return
	}

	if h.cache != nil {
		h.cache.Set(key, vcf)
	}

	writeVCard(ctx, c, vcf)
}

func writeVCard(ctx *gin.Context, c card.Card, vcf []byte) {
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.DisplayName+".vcf"))
	ctx.Data(http.StatusOK, "text/vcard; charset=utf-8", vcf)
}

func (h *CardsHandler) loadCard(ctx *gin.Context) (card.Card, bool) {
	// the card page fetches /cards/<id>.json for the rendered view
	id := strings.TrimSuffix(ctx.Param("id"), ".json")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid card id", nil)
		return card.Card{}, false
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.cards.GetByID(cctx, id)
	if err != nil {
		switch {
		case errors.Is(err, card.ErrCardNotFound):
			RespondNotFound(ctx, "card not found")
		case errors.Is(err, card.ErrCardDeleted):
			RespondError(ctx, http.StatusGone, "card_deleted", "card has been deleted", nil)
		default:
			RespondInternal(ctx, "could not load card")
		}
		return card.Card{}, false
	}

	return c, true
}
