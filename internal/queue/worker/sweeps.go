package worker

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// StartSweeps schedules the background maintenance the queue needs to stay
// honest: freeing locks abandoned by dead workers, dead-lettering jobs with
// no attempts left, and refreshing the queue depth gauges. The caller stops
// the returned cron on shutdown.
func (w *Worker) StartSweeps(ctx context.Context) *cron.Cron {
	c := cron.New()

	_, _ = c.AddFunc("@every 1m", func() {
		n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
		if err != nil {
			slog.Default().ErrorContext(ctx, "stale requeue sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Default().WarnContext(ctx, "requeued stale processing jobs", "count", n)
		}
	})

	_, _ = c.AddFunc("@every 1m", func() {
		n, err := w.repo.FailExhausted(ctx)
		if err != nil {
			slog.Default().ErrorContext(ctx, "dead-letter sweep failed", "error", err)
			return
		}
		if n > 0 {
			for i := int64(0); i < n; i++ {
				w.metrics.IncDeadLettered()
			}
			slog.Default().WarnContext(ctx, "dead-lettered exhausted jobs", "count", n)
		}
	})

	_, _ = c.AddFunc("@every 30s", func() {
		counts, err := w.repo.CountByStatus(ctx)
		if err != nil {
			slog.Default().ErrorContext(ctx, "queue depth refresh failed", "error", err)
			return
		}
		if w.prom == nil {
			return
		}
		for status, count := range counts {
			w.prom.QueueDepth.WithLabelValues(status).Set(float64(count))
		}
	})

	c.Start()
	return c
}
