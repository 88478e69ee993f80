package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/http/middlewares"
	"github.com/outreachpass/passhub/internal/jobs"
	"github.com/outreachpass/passhub/internal/repo/postgres"
	"github.com/outreachpass/passhub/internal/utils"
)

type JobsStore interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error)
}

type CardsReader interface {
	GetByID(ctx context.Context, id string) (card.Card, error)
}

type JobsHandler struct {
	jobs  JobsStore
	cards CardsReader
}

func NewJobsHandler(jobsRepo JobsStore, cards CardsReader) *JobsHandler {
	return &JobsHandler{jobs: jobsRepo, cards: cards}
}

// IssueRequest is the body for POST /cards/:id/issue. A client-generated
// jobId makes the enqueue idempotent: resubmitting the same id returns the
// existing job instead of issuing twice.
type IssueRequest struct {
	JobID          string `json:"jobId" binding:"omitempty,uuid"`
	EventID        string `json:"eventId" binding:"required,uuid"`
	DeliveryMethod string `json:"deliveryMethod" binding:"omitempty,oneof=email none"`
	RunAt          string `json:"runAt" binding:"omitempty"`
}

// POST /cards/:id/issue
func (h *JobsHandler) IssuePass(ctx *gin.Context) {
	cardID := ctx.Param("id")

	if !utils.IsUUID(cardID) {
		RespondBadRequest(ctx, "invalid card id", nil)
		return
	}

	var req IssueRequest
	if !BindJSON(ctx, &req) {
		return
	}

	runAt := time.Now().UTC()
	if req.RunAt != "" {
		t, err := time.Parse(time.RFC3339, req.RunAt)
		if err != nil {
			RespondBadRequest(ctx, "runAt must be RFC 3339 datetime", nil)
			return
		}
		// allow slight clock drift but reject clearly-in-the-past schedules
		if t.Before(time.Now().UTC().Add(-30 * time.Second)) {
			RespondBadRequest(ctx, "runAt must be now or in the future", nil)
			return
		}
		runAt = t.UTC()
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.cards.GetByID(cctx, cardID)
	if err != nil {
		switch {
		case errors.Is(err, card.ErrCardNotFound):
			RespondNotFound(ctx, "card not found")
		case errors.Is(err, card.ErrCardDeleted):
			RespondError(ctx, http.StatusGone, "card_deleted", "card has been deleted", nil)
		default:
			RespondInternal(ctx, "could not load card")
		}
		return
	}

	delivery := jobs.DeliveryMethod(req.DeliveryMethod)
	if delivery == "" {
		delivery = jobs.DeliveryEmail
	}
	if delivery == jobs.DeliveryEmail && c.Email == "" {
		RespondBadRequest(ctx, "card has no email address for delivery", nil)
		return
	}

	payload := jobs.IssuePassPayload{
		CardID:         c.ID,
		TenantID:       c.TenantID,
		EventID:        req.EventID,
		DeliveryMethod: delivery,
		RequestedAt:    time.Now().UTC(),
		RequestID:      requestIDFrom(ctx),
	}
	if c.AttendeeID != nil {
		payload.AttendeeID = *c.AttendeeID
	}

	raw, err := jobs.EncodePayload(jobs.JobIssuePass, payload)
	if err != nil {
		RespondInternal(ctx, "could not enqueue job")
		return
	}

	create := job.CreateRequest{
		ID:      req.JobID,
		Type:    string(jobs.JobIssuePass),
		Payload: raw,
		RunAt:   runAt,
	}
	// the client job id doubles as the idempotency key so a resubmit trips
	// the unique constraint even if the row ids ever diverge
	if req.JobID != "" {
		create.IdempotencyKey = &req.JobID
	}

	j, err := h.jobs.Create(cctx, create)

	if err != nil {
		if postgres.IsUniqueViolation(err) && req.JobID != "" {
			existing, gerr := h.jobs.GetByIdempotencyKey(cctx, req.JobID)
			if gerr != nil {
				RespondInternal(ctx, "could not enqueue job")
				return
			}

			ctx.Set(middlewares.CtxJobID, existing.ID)
			ctx.JSON(http.StatusAccepted, gin.H{
				"jobId":           existing.ID,
				"status":          existing.Status,
				"alreadyEnqueued": true,
			})
			return
		}
		RespondInternal(ctx, "could not enqueue job")
		return
	}

	ctx.Set(middlewares.CtxJobID, j.ID)
	slog.Default().InfoContext(cctx, "issuance enqueued",
		"request_id", requestIDFrom(ctx),
		"job_id", j.ID,
		"card_id", c.ID,
		"event_id", req.EventID,
	)

	ctx.JSON(http.StatusAccepted, gin.H{
		"jobId":  j.ID,
		"status": j.Status,
		"runAt":  j.RunAt,
	})
}

// jobStatusView is the public read model of one issuance.
type jobStatusView struct {
	ID          string       `json:"id"`
	Status      job.Status   `json:"status"`
	Attempts    int          `json:"attempts"`
	MaxAttempts int          `json:"maxAttempts"`
	LastError   *string      `json:"lastError,omitempty"`
	Result      *jobs.Result `json:"result,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// GET /jobs/:id
func (h *JobsHandler) GetJob(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid job id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	j, err := h.jobs.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondInternal(ctx, "could not load job")
		return
	}

	view := jobStatusView{
		ID:          j.ID,
		Status:      j.Status,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}

	if len(j.Result) > 0 {
		res, derr := jobs.DecodeResult(j.Result)
		if derr == nil {
			view.Result = &res
		}
	}

	RespondJSONWithETag(ctx, http.StatusOK, view)
}
