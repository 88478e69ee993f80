package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is the readiness dependency; the pgx pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (w *Worker) HealthHandler(db Pinger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"ok": true,
		})
	})

	// readiness: pollers running and the queue reachable
	r.GET("/readyz", func(ctx *gin.Context) {
		if !w.isReady() {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 500*time.Millisecond)
		defer cancel()

		if db != nil {
			if err := db.Ping(pingCtx); err != nil {
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
				return
			}
		}

		ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// point-in-time job counters for ops spot checks
	r.GET("/metricsz", func(ctx *gin.Context) {
		snap := w.metrics.Snapshot()
		ctx.JSON(http.StatusOK, gin.H{
			"claimed":       snap.Claimed,
			"done":          snap.Done,
			"failed":        snap.Failed,
			"retried":       snap.Retried,
			"dead_lettered": snap.DeadLettered,
			"lost_claims":   snap.LostClaims,
			"avg_duration":  snap.AverageDuration.String(),
			"max_duration":  snap.MaxDuration.String(),
		})
	})

	return r
}
