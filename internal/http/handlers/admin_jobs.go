package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/repo/postgres"
	"github.com/outreachpass/passhub/internal/utils"
)

type AdminJobsStore interface {
	ListCursor(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	Retry(ctx context.Context, id string) error
	RetryManyFailed(ctx context.Context, limit int) (int64, error)
}

// AdminJobsHandler is the ops surface over the queue: inspect, page through,
// and requeue dead-lettered jobs.
type AdminJobsHandler struct {
	jobs AdminJobsStore
}

func NewAdminJobsHandler(jobs AdminJobsStore) *AdminJobsHandler {
	return &AdminJobsHandler{jobs: jobs}
}

var validStatuses = map[string]bool{
	string(job.StatusPending):    true,
	string(job.StatusProcessing): true,
	string(job.StatusCompleted):  true,
	string(job.StatusFailed):     true,
}

// GET /admin/jobs?status=&limit=&cursor=
func (h *AdminJobsHandler) List(ctx *gin.Context) {
	var status *string
	if s := ctx.Query("status"); s != "" {
		if !validStatuses[s] {
			RespondBadRequest(ctx, "unknown status filter", nil)
			return
		}
		status = &s
	}

	limit := 20
	if ls := ctx.Query("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 1 || n > 100 {
			RespondBadRequest(ctx, "limit must be 1-100", nil)
			return
		}
		limit = n
	}

	// default cursor: from "now", i.e. the newest rows
	afterUpdatedAt := time.Now().UTC().Add(time.Minute)
	afterID := "ffffffff-ffff-ffff-ffff-ffffffffffff"

	if cs := ctx.Query("cursor"); cs != "" {
		cur, err := utils.DecodeJobCursor(cs)
		if err != nil {
			RespondBadRequest(ctx, "invalid cursor", nil)
			return
		}
		afterUpdatedAt = cur.UpdatedAt
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.jobs.ListCursor(cctx, status, limit, afterUpdatedAt, afterID)
	if err != nil {
		RespondInternal(ctx, "could not list jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":      items,
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// GET /admin/jobs/:id
func (h *AdminJobsHandler) Get(ctx *gin.Context) {
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

	ctx.JSON(http.StatusOK, j)
}

// POST /admin/jobs/:id/retry
func (h *AdminJobsHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid job id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	err := h.jobs.Retry(cctx, id)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			RespondNotFound(ctx, "job not found")
		case errors.Is(err, postgres.ErrJobNotFailed):
			RespondConflict(ctx, "not_failed", "only failed jobs can be retried")
		default:
			RespondInternal(ctx, "could not retry job")
		}
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"jobId": id, "status": job.StatusPending})
}

// POST /admin/jobs/reprocess-dead?limit=
func (h *AdminJobsHandler) ReprocessDead(ctx *gin.Context) {
	limit := 100
	if ls := ctx.Query("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 1 || n > 1000 {
			RespondBadRequest(ctx, "limit must be 1-1000", nil)
			return
		}
		limit = n
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	n, err := h.jobs.RetryManyFailed(cctx, limit)
	if err != nil {
		RespondInternal(ctx, "could not reprocess dead jobs")
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"requeued": n})
}
