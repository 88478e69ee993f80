package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/observability"
	"github.com/outreachpass/passhub/internal/repo/postgres"
	"github.com/outreachpass/passhub/internal/tracking"
)

// transparent 1x1 GIF, served on every open hit
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x21, 0xF9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3B,
}

type DispatchReader interface {
	Get(ctx context.Context, messageID string) (tracking.DispatchContext, error)
}

type EventRecorder interface {
	Record(ctx context.Context, ev postgres.EmailEvent) error
}

type TrackingHandler struct {
	dispatches DispatchReader
	events     EventRecorder
	prom       *observability.Prom
}

func NewTrackingHandler(dispatches DispatchReader, events EventRecorder, prom *observability.Prom) *TrackingHandler {
	return &TrackingHandler{dispatches: dispatches, events: events, prom: prom}
}

// GET /track/email/open/:mid
// Always returns the pixel: a broken tracking id must never break image
// rendering in the recipient's client.
func (h *TrackingHandler) Open(ctx *gin.Context) {
	mid := strings.TrimSuffix(ctx.Param("mid"), ".gif")

	h.record(ctx, mid, "open", "", "")

	ctx.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	ctx.Data(http.StatusOK, "image/gif", trackingPixel)
}

// GET /track/email/click?url=&mid=&type=
// Records the hit and forwards to the destination. Unknown message ids still
// redirect; losing the recipient's click to a tracking hiccup is worse than
// losing the data point.
func (h *TrackingHandler) Click(ctx *gin.Context) {
	target := ctx.Query("url")
	mid := ctx.Query("mid")
	linkType := ctx.Query("type")

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		RespondBadRequest(ctx, "url must be an absolute http(s) link", nil)
		return
	}

	h.record(ctx, mid, "click", linkType, target)

	ctx.Redirect(http.StatusFound, target)
}

func (h *TrackingHandler) record(ctx *gin.Context, mid, kind, linkType, target string) {
	if mid == "" {
		return
	}

	cctx, cancel := config.WithTimeout(1 * time.Second)
	defer cancel()

	ev := postgres.EmailEvent{
		MessageID: mid,
		Kind:      kind,
		LinkType:  linkType,
		TargetURL: target,
	}

	dc, err := h.dispatches.Get(cctx, mid)
	switch {
	case err == nil:
		ev.JobID = dc.JobID
		ev.CardID = dc.CardID
	case errors.Is(err, tracking.ErrUnknownMessage):
		// expired or forged id; record the hit unattributed
	default:
		slog.Default().WarnContext(cctx, "dispatch context lookup failed", "message_id", mid, "error", err)
	}

	if rerr := h.events.Record(cctx, ev); rerr != nil {
		slog.Default().WarnContext(cctx, "tracking event not recorded", "message_id", mid, "kind", kind, "error", rerr)
		return
	}

	if h.prom != nil {
		lt := linkType
		if lt == "" {
			lt = "none"
		}
		h.prom.EmailEvents.WithLabelValues(kind, lt).Inc()
	}
}
