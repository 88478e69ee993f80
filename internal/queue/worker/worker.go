package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/jobs"
	"github.com/outreachpass/passhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkCompleted(ctx context.Context, id, workerID string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
	FailExhausted(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Runner executes one claimed job. The issuance pipeline satisfies this; the
// returned error's classification decides retry versus dead-letter.
type Runner interface {
	Run(ctx context.Context, j job.Job, workerID string) (jobs.Result, error)
}

type Config struct {
	WorkerID     string
	PollInterval time.Duration
	Concurrency  int
	LockTTL      time.Duration
}

type Worker struct {
	cfg     Config
	repo    JobsRepository
	runner  Runner
	prom    *observability.Prom
	metrics *observability.JobMetrics

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, runner Runner, prom *observability.Prom, metrics *observability.JobMetrics) *Worker {
	if cfg.WorkerID == "" {
		host, _ := os.Hostname()
		cfg.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if metrics == nil {
		metrics = observability.NewJobMetrics()
	}

	return &Worker{
		cfg:     cfg,
		repo:    repo,
		runner:  runner,
		prom:    prom,
		metrics: metrics,
	}
}

func (w *Worker) Metrics() *observability.JobMetrics { return w.metrics }

// Run polls until the context is cancelled. Each poller claims greedily: as
// long as jobs keep coming it loops without sleeping, and only backs off to
// the poll interval when the queue is drained.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	slog.Default().InfoContext(ctx, "worker starting",
		"worker_id", w.cfg.WorkerID,
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
	)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()
			w.pollLoop(ctx, n)
		}(i)
	}

	wg.Wait()
	slog.Default().InfoContext(ctx, "worker stopped", "worker_id", w.cfg.WorkerID)
	return nil
}

func (w *Worker) pollLoop(ctx context.Context, n int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			slog.Default().ErrorContext(ctx, "process error", "poller", n, "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) isReady() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

func (w *Worker) observeOutcome(j job.Job, result string, took time.Duration) {
	if w.prom == nil {
		return
	}
	w.prom.JobResults.WithLabelValues(j.Type, result).Inc()
	w.prom.JobDuration.WithLabelValues(j.Type, result).Observe(took.Seconds())
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	return msg
}

func summarizeResult(res jobs.Result) string {
	b, err := json.Marshal(res)
	if err != nil {
		return ""
	}
	return string(b)
}
