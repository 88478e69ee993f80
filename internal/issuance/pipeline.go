package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/outreachpass/passhub/internal/artifact"
	"github.com/outreachpass/passhub/internal/domain/brand"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/event"
	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/jobs"
	"github.com/outreachpass/passhub/internal/observability"
	"github.com/outreachpass/passhub/internal/storage"
	"github.com/outreachpass/passhub/internal/wallet"
)

// IssuanceContext is everything the pipeline loads before producing
// artifacts. It is read once at claim time, so one run always sees a single
// consistent card revision.
type IssuanceContext struct {
	Card  card.Card
	Event event.Event
	Brand brand.Brand
}

// ContextLoader resolves the card, event, and brand for a payload. The
// postgres card repo satisfies this.
type ContextLoader interface {
	GetIssuanceContext(ctx context.Context, tenantID, cardID, eventID string) (IssuanceContext, error)
}

// ResultStore persists the accumulating result after each step. Writes are
// guarded by the worker's lock so a stale worker cannot clobber a
// re-delivered job's progress.
type ResultStore interface {
	UpdateResult(ctx context.Context, jobID, workerID string, result json.RawMessage) error
}

// EmailDispatch is the pipeline's view of one delivery. The concrete email
// dispatcher is adapted onto this in the worker wiring.
type EmailDispatch struct {
	JobID         string
	Card          card.Card
	Event         event.Event
	CardURL       string
	GoogleSaveURL string
	ApplePass     []byte
}

type EmailDispatcher interface {
	Dispatch(ctx context.Context, in EmailDispatch) (messageID string, err error)
}

// Pipeline runs one issuance job end to end: QR and vCard artifacts, a pass
// per enabled wallet platform, then delivery. Every step persists its output
// before the next starts, and every step checks the persisted result first,
// so a redelivered job resumes instead of redoing external calls.
type Pipeline struct {
	loader   ContextLoader
	store    storage.ObjectStore
	results  ResultStore
	builders []wallet.PassBuilder
	email    EmailDispatcher

	publicBaseURL string
	qrSize        int

	prom *observability.Prom
}

func NewPipeline(loader ContextLoader, store storage.ObjectStore, results ResultStore, builders []wallet.PassBuilder, email EmailDispatcher, publicBaseURL string) *Pipeline {
	return &Pipeline{
		loader:        loader,
		store:         store,
		results:       results,
		builders:      builders,
		email:         email,
		publicBaseURL: publicBaseURL,
		qrSize:        512,
	}
}

// WithMetrics attaches the prometheus counters for build and send outcomes.
func (p *Pipeline) WithMetrics(prom *observability.Prom) *Pipeline {
	p.prom = prom
	return p
}

func (p *Pipeline) countWalletBuild(platform, result string) {
	if p.prom != nil {
		p.prom.WalletBuilds.WithLabelValues(platform, result).Inc()
	}
}

func (p *Pipeline) countEmail(result string) {
	if p.prom != nil {
		p.prom.EmailsSent.WithLabelValues(result).Inc()
	}
}

// Run processes one claimed job. A nil error means the job is complete; the
// returned result is its final state. Errors carry the retry classification:
// transient errors send the job back for backoff, permanent ones fail it.
func (p *Pipeline) Run(ctx context.Context, j job.Job, workerID string) (jobs.Result, error) {
	decoded, err := jobs.DecodePayload(jobs.JobType(j.Type), j.Payload)
	if err != nil {
		return jobs.Result{}, Permanentf("decode payload: %w", err)
	}
	payload, ok := decoded.(jobs.IssuePassPayload)
	if !ok {
		return jobs.Result{}, Permanentf("job %s is not an issuance job", j.ID)
	}

	res, err := jobs.DecodeResult(j.Result)
	if err != nil {
		// a corrupt result column should not wedge the job forever
		slog.Default().WarnContext(ctx, "discarding unreadable job result", "job_id", j.ID, "error", err)
		res = jobs.Result{}
	}

	ictx, err := p.loader.GetIssuanceContext(ctx, payload.TenantID, payload.CardID, payload.EventID)
	if err != nil {
		return res, classifyLoadError(err)
	}

	// the card changed since a previous attempt: stale artifacts must not
	// survive, so start the run over against the current revision
	if res.CardRevision != 0 && res.CardRevision != ictx.Card.Revision {
		slog.Default().InfoContext(ctx, "card revised since last attempt, rebuilding artifacts",
			"job_id", j.ID, "old_revision", res.CardRevision, "new_revision", ictx.Card.Revision)
		res = jobs.Result{}
	}
	res.CardRevision = ictx.Card.Revision

	cardURL := ictx.Card.PublicURL(p.publicBaseURL)

	if err := p.stepQR(ctx, j.ID, workerID, ictx, cardURL, &res); err != nil {
		return res, err
	}

	if err := p.stepVCard(ctx, j.ID, workerID, ictx, &res); err != nil {
		return res, err
	}

	if err := p.stepWallets(ctx, j.ID, workerID, payload, ictx, cardURL, &res); err != nil {
		return res, err
	}

	if err := p.stepEmail(ctx, j.ID, workerID, payload, ictx, cardURL, &res); err != nil {
		return res, err
	}

	return res, nil
}

func (p *Pipeline) stepQR(ctx context.Context, jobID, workerID string, ictx IssuanceContext, cardURL string, res *jobs.Result) error {
	if res.QRKey != "" {
		return nil
	}

	png, err := artifact.QRPNG(cardURL, p.qrSize)
	if err != nil {
		return Permanentf("render qr: %w", err)
	}

	key := storage.QRKey(ictx.Card.TenantID, ictx.Card.ID, ictx.Card.Revision)
	if err := p.store.Upload(ctx, key, png, "image/png"); err != nil {
		return Transientf("upload qr: %w", err)
	}

	res.QRKey = key
	return p.persist(ctx, jobID, workerID, res)
}

func (p *Pipeline) stepVCard(ctx context.Context, jobID, workerID string, ictx IssuanceContext, res *jobs.Result) error {
	if res.VCardKey != "" {
		return nil
	}

	vcf, err := artifact.VCard(ictx.Card)
	if err != nil {
		return Permanentf("render vcard: %w", err)
	}

	key := storage.VCardKey(ictx.Card.TenantID, ictx.Card.ID, ictx.Card.Revision)
	if err := p.store.Upload(ctx, key, vcf, "text/vcard"); err != nil {
		return Transientf("upload vcard: %w", err)
	}

	res.VCardKey = key
	return p.persist(ctx, jobID, workerID, res)
}

// stepWallets builds each enabled platform independently. A permanent
// failure on one platform is recorded and the others continue; a transient
// failure aborts the run so the whole job retries, with the finished
// platforms already persisted and skipped next time.
func (p *Pipeline) stepWallets(ctx context.Context, jobID, workerID string, payload jobs.IssuePassPayload, ictx IssuanceContext, cardURL string, res *jobs.Result) error {
	serial := wallet.SerialFor(payload.TenantID, payload.CardID, jobID)

	for _, b := range p.builders {
		platform := b.Platform()
		if res.WalletOK(platform) {
			continue
		}

		built, err := b.Build(ctx, wallet.PassInput{
			Card:   ictx.Card,
			Event:  ictx.Event,
			Brand:  ictx.Brand,
			Serial: serial,
			QRURL:  cardURL,
		})

		if err != nil {
			if IsPermanent(err) {
				p.countWalletBuild(platform, "error")
				res.SetWallet(platform, jobs.WalletResult{
					Status: jobs.WalletStatusError,
					Error:  err.Error(),
				})
				slog.Default().WarnContext(ctx, "wallet platform failed permanently",
					"job_id", jobID, "platform", platform, "error", err)

				if perr := p.persist(ctx, jobID, workerID, res); perr != nil {
					return perr
				}
				continue
			}
			return fmt.Errorf("build %s pass: %w", platform, err)
		}

		wr := jobs.WalletResult{
			Status:   jobs.WalletStatusOK,
			URL:      built.SaveURL,
			ObjectID: built.ObjectID,
		}

		if len(built.Archive) > 0 {
			key := storage.ApplePassKey(payload.TenantID, payload.CardID, serial)
			if err := p.store.Upload(ctx, key, built.Archive, built.ContentType); err != nil {
				return Transientf("upload %s archive: %w", platform, err)
			}
			wr.StorageKey = key
		}

		p.countWalletBuild(platform, "ok")
		res.SetWallet(platform, wr)
		if err := p.persist(ctx, jobID, workerID, res); err != nil {
			return err
		}
	}

	return nil
}

// stepEmail delivers the issuance message. A permanent delivery failure does
// not fail the job: the passes exist and are usable, so the job completes
// with emailSent=false and the reason recorded on the result.
func (p *Pipeline) stepEmail(ctx context.Context, jobID, workerID string, payload jobs.IssuePassPayload, ictx IssuanceContext, cardURL string, res *jobs.Result) error {
	if payload.DeliveryMethod != jobs.DeliveryEmail || res.EmailSent {
		return nil
	}

	dispatch := EmailDispatch{
		JobID:   jobID,
		Card:    ictx.Card,
		Event:   ictx.Event,
		CardURL: cardURL,
	}

	if w, ok := res.Wallets["google"]; ok && w.Status == jobs.WalletStatusOK {
		dispatch.GoogleSaveURL = w.URL
	}
	if w, ok := res.Wallets["apple"]; ok && w.Status == jobs.WalletStatusOK && w.StorageKey != "" {
		archive, err := p.store.Get(ctx, w.StorageKey)
		if err != nil {
			return Transientf("load pass archive for email: %w", err)
		}
		dispatch.ApplePass = archive
	}

	messageID, err := p.email.Dispatch(ctx, dispatch)
	if err != nil {
		if IsPermanent(err) {
			p.countEmail("undeliverable")
			slog.Default().WarnContext(ctx, "issuance email undeliverable",
				"job_id", jobID, "recipient", ictx.Card.Email, "error", err)
			res.EmailSent = false
			return p.persist(ctx, jobID, workerID, res)
		}
		return fmt.Errorf("dispatch email: %w", err)
	}

	p.countEmail("sent")
	res.EmailSent = true
	res.MessageID = messageID
	return p.persist(ctx, jobID, workerID, res)
}

func (p *Pipeline) persist(ctx context.Context, jobID, workerID string, res *jobs.Result) error {
	raw, err := res.ToJSONRaw()
	if err != nil {
		return Permanentf("encode result: %w", err)
	}

	// losing the lock mid-run means another worker owns the job now; stop
	// without side effects on the record
	if err := p.results.UpdateResult(ctx, jobID, workerID, raw); err != nil {
		return Transientf("persist result: %w", err)
	}
	return nil
}

func classifyLoadError(err error) error {
	switch {
	case errors.Is(err, card.ErrCardNotFound), errors.Is(err, card.ErrCardDeleted), errors.Is(err, event.ErrNotFound):
		return Permanent(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Transient(err)
	default:
		return Transient(fmt.Errorf("load issuance context: %w", err))
	}
}
