package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/observability"
	"github.com/outreachpass/passhub/internal/utils"
)

var ErrJobNotFailed = errors.New("job is not failed")

const jobColumns = `id, type, payload, status,
	       attempts, max_attempts,
	       run_at, locked_at, locked_by,
	       last_error, idempotency_key, result,
	       created_at, updated_at`

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (repo *JobsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)
	op := "jobs.create"

	var err error

	err = r.observe(op, func() error {
		_, err = r.pool.Exec(ctx, `INSERT INTO jobs(
	 id, type, payload, status, attempts, max_attempts, run_at, locked_at, locked_by, last_error, idempotency_key, result, created_at, updated_at
	 ) VALUES (
		$1,$2,$3,$4,
		$5,$6,$7,$8,$9,
		$10,$11,$12,$13,$14
	 )
	 `, j.ID, j.Type, j.Payload, string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt, j.LockedAt, j.LockedBy, j.LastError, req.IdempotencyKey, j.Result, j.CreatedAt, j.UpdatedAt)

		return err
	})

	if err != nil {
		return job.Job{}, err
	}

	return j, nil
}

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string

	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &status,
		&j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LockedBy,
		&j.LastError, &j.IdempotencyKey, &j.Result,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return job.Job{}, err
	}

	j.Status = job.Status(status)
	return j, nil
}

// ClaimNext is a single statement claim using the SKIP LOCKED pattern.
// Only claims jobs ready to run (pending, run_at <= now) that have attempts
// left. The claim itself counts the attempt, so a worker crash mid-run still
// burns one.
func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job
	var err error

	op := "jobs.claim_next"

	err = r.observe(op, func() error {
		j, err = scanJob(r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM jobs
			WHERE status = 'pending'
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs
		SET status = 'processing',
		    attempts = attempts + 1,
		    locked_at = NOW(),
		    locked_by = $1,
		    updated_at = NOW()
		WHERE id = (SELECT id FROM next)
		RETURNING `+jobColumns, workerID))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound // treat as "no job available"
		}
		return job.Job{}, err
	}

	return j, nil
}

// UpdateResult writes the accumulating step output. The write is guarded by
// the caller's lock: if another worker has claimed the job since, nothing is
// updated and the stale worker finds out here.
func (r *JobsRepo) UpdateResult(ctx context.Context, id, workerID string, result json.RawMessage) error {
	var tag pgconn.CommandTag
	var err error
	op := "jobs.update_result"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET result = $3,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND locked_by = $2
	`, id, workerID, result)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotClaimed
	}
	return nil
}

func (r *JobsRepo) MarkCompleted(ctx context.Context, id, workerID string) error {
	var tag pgconn.CommandTag
	var err error
	op := "jobs.mark_completed"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx,
			`UPDATE jobs
		SET status = 'completed',
			locked_at = NULL,
			locked_by = NULL,
			last_error = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND locked_by = $2
		`, id, workerID)

		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return job.ErrNotClaimed
	}
	return nil
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	var tag pgconn.CommandTag
	var err error
	op := "jobs.mark_failed"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, errMsg)
		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// Reschedule is the retry/backoff path: back to pending with a future run_at.
// The attempt was already counted at claim time.
func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	var tag pgconn.CommandTag
	var err error

	op := "jobs.reschedule"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, runAt, errMsg)

		return err
	})

	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

func (r *JobsRepo) GetByID(ctx context.Context, id string) (job.Job, error) {
	var j job.Job
	var err error
	op := "jobs.get_by_id"

	err = r.observe(op, func() error {
		j, err = scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound
		}
		return job.Job{}, err
	}

	return j, nil
}

func (r *JobsRepo) GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error) {
	var j job.Job
	var err error
	op := "jobs.get_by_idempotency_key"

	err = r.observe(op, func() error {
		j, err = scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE idempotency_key = $1
	`, key))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound
		}
		return job.Job{}, err
	}

	return j, nil
}

// RequeueStaleProcessing frees jobs whose worker died mid-run: processing
// rows whose lock is older than the TTL go back to pending.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}
	var rows int64
	var err error

	op := "jobs.requeue_stale"
	err = r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND locked_at IS NOT NULL
		  AND locked_at < NOW() - ($1 * INTERVAL '1 second')
	`, secs)

		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}

// FailExhausted is the dead-letter sweep: pending jobs with no attempts left
// can never be claimed again, so move them to failed where the admin
// endpoints can see them.
func (r *JobsRepo) FailExhausted(ctx context.Context) (int64, error) {
	var rows int64
	var err error

	op := "jobs.fail_exhausted"
	err = r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    last_error = COALESCE(last_error, 'max attempts exhausted'),
		    updated_at = NOW()
		WHERE status = 'pending'
		  AND attempts >= max_attempts
	`)

		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}

// Admin ops endpoints

func (r *JobsRepo) ListCursor(
	ctx context.Context,
	status *string,
	limit int,
	afterUpdatedAt time.Time,
	afterID string,
) (items []job.Job, nextCursor *string, hasMore bool, err error) {
	op := "jobs.admin.list_cursor"

	base := `
		SELECT ` + jobColumns + `
		FROM jobs
	`

	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argsPos))
		args = append(args, *status)
		argsPos++
	}

	// DESC keyset: fetch rows "older" than cursor
	conds = append(conds, fmt.Sprintf("(updated_at, id) < ($%d, $%d)", argsPos, argsPos+1))
	args = append(args, afterUpdatedAt, afterID)
	argsPos += 2

	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	limitPlusOne := limit + 1
	q += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", argsPos)
	args = append(args, limitPlusOne)

	var rows pgx.Rows

	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]job.Job, 0, limit)

	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, j)
	}

	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]

		cur, encErr := utils.EncodeJobCursor(last.UpdatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

// Retry requeues a failed job with a fresh attempt budget.
func (r *JobsRepo) Retry(ctx context.Context, id string) error {
	var status string

	var err error
	op := "jobs.admin.retry.check_status"

	err = r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.ErrJobNotFound
		}
		return err
	}

	if status != string(job.StatusFailed) {
		return ErrJobNotFailed
	}

	requeueOp := "jobs.admin.retry.requeue"

	return r.observe(requeueOp, func() error {
		_, e := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    attempts = 0,
		    run_at = NOW(),
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
		return e
	})
}

// RetryManyFailed requeues failed jobs in bulk, oldest first, up to limit.
// This is the recovery path after an outage dead-letters a batch.
func (r *JobsRepo) RetryManyFailed(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}

	var tag pgconn.CommandTag
	var err error
	op := "jobs.admin.retry_many_failed"

	err = r.observe(op, func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending',
		    attempts = 0,
		    run_at = NOW(),
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'failed'
			ORDER BY updated_at ASC
			LIMIT $1
		)
	`, limit)
		return e
	})

	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByStatus feeds the queue-depth gauges.
func (r *JobsRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows pgx.Rows
	var err error

	op := "jobs.count_by_status"
	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, scanErr
		}
		out[status] = count
	}
	return out, rows.Err()
}
