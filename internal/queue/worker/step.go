package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/issuance"
)

// ProcessOne claims and runs a single job. The bool reports whether a job was
// available; the error is for infrastructure trouble (claim failures), not
// job outcomes, which are absorbed into the job record.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	w.metrics.IncClaimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	slog.Default().InfoContext(ctx, "claimed job",
		"job_id", j.ID, "type", j.Type, "attempt", j.Attempts, "max_attempts", j.MaxAttempts)

	start := time.Now()
	res, runErr := w.runner.Run(ctx, j, w.cfg.WorkerID)
	took := time.Since(start)
	w.metrics.ObserveDuration(took)

	if runErr != nil {
		w.handleFailure(ctx, j, runErr, took)
		return true, nil
	}

	if err := w.repo.MarkCompleted(ctx, j.ID, w.cfg.WorkerID); err != nil {
		if errors.Is(err, job.ErrNotClaimed) {
			// the lock moved on while we ran; the new owner's run wins
			w.metrics.IncLostClaim()
			slog.Default().WarnContext(ctx, "lost claim before completion", "job_id", j.ID)
			return true, nil
		}
		w.observeOutcome(j, "failed", took)
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_completed_failed: "+err.Error())
		return true, err
	}

	w.metrics.IncDone()
	w.observeOutcome(j, "completed", took)

	slog.Default().InfoContext(ctx, "job completed",
		"job_id", j.ID, "type", j.Type, "took", took.String(), "result", summarizeResult(res))

	return true, nil
}

// handleFailure routes a failed run: permanent errors and exhausted attempt
// budgets dead-letter the job, anything else goes back on the queue with
// backoff.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, runErr error, took time.Duration) {
	msg := truncateErr(runErr)

	if issuance.IsPermanent(runErr) {
		w.metrics.IncFailed()
		w.observeOutcome(j, "failed", took)

		slog.Default().ErrorContext(ctx, "job failed permanently",
			"job_id", j.ID, "type", j.Type, "attempt", j.Attempts, "error", msg)

		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			slog.Default().ErrorContext(ctx, "mark failed error", "job_id", j.ID, "error", err)
		}
		return
	}

	// attempts were counted at claim time
	if j.Attempts >= j.MaxAttempts {
		w.metrics.IncDeadLettered()
		w.observeOutcome(j, "failed", took)

		slog.Default().ErrorContext(ctx, "job exhausted retries",
			"job_id", j.ID, "type", j.Type, "attempts", j.Attempts, "error", msg)

		if err := w.repo.MarkFailed(ctx, j.ID, "retries exhausted: "+msg); err != nil {
			slog.Default().ErrorContext(ctx, "mark failed error", "job_id", j.ID, "error", err)
		}
		return
	}

	delay := ExponentialBackoff(j.Attempts)
	w.metrics.IncRetried()
	w.observeOutcome(j, "retry", took)

	slog.Default().WarnContext(ctx, "job rescheduled",
		"job_id", j.ID, "type", j.Type, "attempt", j.Attempts, "delay", delay.String(), "error", msg)

	if err := w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), msg); err != nil {
		slog.Default().ErrorContext(ctx, "reschedule error", "job_id", j.ID, "error", err)
	}
}
