package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/outreachpass/passhub/internal/domain/brand"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/event"
	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/jobs"
	"github.com/outreachpass/passhub/internal/wallet"
)

type fakeLoader struct {
	ictx IssuanceContext
	err  error
}

func (f *fakeLoader) GetIssuanceContext(_ context.Context, _, _, _ string) (IssuanceContext, error) {
	if f.err != nil {
		return IssuanceContext{}, f.err
	}
	return f.ictx, nil
}

type fakeObjectStore struct {
	objects map[string][]byte
	uploads int
	failOn  string
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	if f.failOn != "" && key == f.failOn {
		return errors.New("storage unavailable")
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	f.uploads++
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return b, nil
}

func (f *fakeObjectStore) PresignedGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://store.local/" + key, nil
}

type fakeResults struct {
	writes []json.RawMessage
	err    error
}

func (f *fakeResults) UpdateResult(_ context.Context, _, _ string, result json.RawMessage) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, result)
	return nil
}

func (f *fakeResults) last(t *testing.T) jobs.Result {
	t.Helper()
	if len(f.writes) == 0 {
		t.Fatalf("no result writes recorded")
	}
	res, err := jobs.DecodeResult(f.writes[len(f.writes)-1])
	if err != nil {
		t.Fatalf("decode persisted result: %v", err)
	}
	return res
}

type fakeBuilder struct {
	platform string
	result   wallet.PassResult
	err      error
	calls    int
}

func (f *fakeBuilder) Platform() string { return f.platform }

func (f *fakeBuilder) Build(_ context.Context, in wallet.PassInput) (wallet.PassResult, error) {
	f.calls++
	if f.err != nil {
		return wallet.PassResult{}, f.err
	}
	out := f.result
	out.Platform = f.platform
	return out, nil
}

type fakeEmail struct {
	dispatches []EmailDispatch
	err        error
}

func (f *fakeEmail) Dispatch(_ context.Context, in EmailDispatch) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.dispatches = append(f.dispatches, in)
	return "msg-" + in.JobID, nil
}

func testContext() IssuanceContext {
	return IssuanceContext{
		Card: card.Card{
			ID:          "c1",
			TenantID:    "t1",
			DisplayName: "Ada Lovelace",
			Email:       "ada@example.com",
			Revision:    2,
		},
		Event: event.Event{
			ID:    "e1",
			Name:  "GopherCon 2026",
			EndAt: time.Date(2026, 9, 22, 18, 0, 0, 0, time.UTC),
		},
		Brand: brand.Brand{Name: "OutreachPass"},
	}
}

func testJob(t *testing.T) job.Job {
	t.Helper()

	payload, err := jobs.IssuePassPayload{
		CardID:         "c1",
		TenantID:       "t1",
		EventID:        "e1",
		DeliveryMethod: jobs.DeliveryEmail,
		RequestedAt:    time.Now().UTC(),
	}.ToJSONRaw()
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	return job.Job{
		ID:      "job-1",
		Type:    string(jobs.JobIssuePass),
		Payload: payload,
		Status:  job.StatusProcessing,
	}
}

func newTestPipeline(loader *fakeLoader, store *fakeObjectStore, results *fakeResults, email *fakeEmail, builders ...wallet.PassBuilder) *Pipeline {
	return NewPipeline(loader, store, results, builders, email, "https://app.outreachpass.io")
}

func TestRun_EndToEnd(t *testing.T) {
	store := &fakeObjectStore{}
	results := &fakeResults{}
	email := &fakeEmail{}
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok", ObjectID: "iss.obj"}}
	apple := &fakeBuilder{platform: "apple", result: wallet.PassResult{Archive: []byte("pkpass"), ContentType: "application/vnd.apple.pkpass"}}

	p := newTestPipeline(&fakeLoader{ictx: testContext()}, store, results, email, google, apple)

	res, err := p.Run(context.Background(), testJob(t), "w1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.QRKey != "qr/t1/c1/r2.png" {
		t.Fatalf("qr key = %s", res.QRKey)
	}
	if res.VCardKey != "vcard/t1/c1/r2.vcf" {
		t.Fatalf("vcard key = %s", res.VCardKey)
	}
	if _, ok := store.objects[res.QRKey]; !ok {
		t.Fatalf("qr artifact not uploaded")
	}

	if !res.WalletOK("google") || !res.WalletOK("apple") {
		t.Fatalf("both platforms should succeed: %+v", res.Wallets)
	}
	if res.Wallets["apple"].StorageKey == "" {
		t.Fatalf("apple archive must be stored")
	}
	if _, ok := store.objects[res.Wallets["apple"].StorageKey]; !ok {
		t.Fatalf("archive missing from store")
	}

	if !res.EmailSent || res.MessageID != "msg-job-1" {
		t.Fatalf("email outcome = sent:%v id:%s", res.EmailSent, res.MessageID)
	}

	if len(email.dispatches) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(email.dispatches))
	}
	d := email.dispatches[0]
	if d.GoogleSaveURL == "" || len(d.ApplePass) == 0 {
		t.Fatalf("dispatch must carry both wallet outputs: %+v", d)
	}

	// final persisted state matches the returned result
	if persisted := results.last(t); !persisted.EmailSent {
		t.Fatalf("final result not persisted")
	}
}

func TestRun_ResumesFromPersistedResult(t *testing.T) {
	store := &fakeObjectStore{objects: map[string][]byte{
		"passes/apple/t1/c1/x.pkpass": []byte("pkpass"),
	}}
	results := &fakeResults{}
	email := &fakeEmail{}
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok"}}
	apple := &fakeBuilder{platform: "apple"}

	prior := jobs.Result{
		QRKey:        "qr/t1/c1/r2.png",
		VCardKey:     "vcard/t1/c1/r2.vcf",
		CardRevision: 2,
	}
	prior.SetWallet("apple", jobs.WalletResult{Status: jobs.WalletStatusOK, StorageKey: "passes/apple/t1/c1/x.pkpass"})
	raw, _ := prior.ToJSONRaw()

	j := testJob(t)
	j.Result = raw

	p := newTestPipeline(&fakeLoader{ictx: testContext()}, store, results, email, google, apple)

	res, err := p.Run(context.Background(), j, "w1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if apple.calls != 0 {
		t.Fatalf("completed platform must be skipped, calls = %d", apple.calls)
	}
	if google.calls != 1 {
		t.Fatalf("pending platform must run, calls = %d", google.calls)
	}
	if store.uploads != 0 {
		t.Fatalf("existing artifacts must not be re-uploaded, uploads = %d", store.uploads)
	}
	if !res.EmailSent {
		t.Fatalf("email should send on the resumed run")
	}
}

func TestRun_CardRevisedSinceLastAttempt(t *testing.T) {
	store := &fakeObjectStore{}
	results := &fakeResults{}
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok"}}

	prior := jobs.Result{
		QRKey:        "qr/t1/c1/r1.png",
		VCardKey:     "vcard/t1/c1/r1.vcf",
		CardRevision: 1,
	}
	prior.SetWallet("google", jobs.WalletResult{Status: jobs.WalletStatusOK, URL: "stale"})
	raw, _ := prior.ToJSONRaw()

	j := testJob(t)
	j.Result = raw

	p := newTestPipeline(&fakeLoader{ictx: testContext()}, store, results, &fakeEmail{}, google)

	res, err := p.Run(context.Background(), j, "w1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.QRKey != "qr/t1/c1/r2.png" {
		t.Fatalf("artifacts must rebuild against the current revision, got %s", res.QRKey)
	}
	if google.calls != 1 {
		t.Fatalf("wallet must rebuild after a card edit")
	}
	if res.Wallets["google"].URL == "stale" {
		t.Fatalf("stale wallet entry survived the rebuild")
	}
}

func TestRun_PlatformFailuresAreIndependent(t *testing.T) {
	store := &fakeObjectStore{}
	results := &fakeResults{}
	email := &fakeEmail{}
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok"}}
	apple := &fakeBuilder{platform: "apple", err: Permanent(errors.New("signing cert expired"))}

	p := newTestPipeline(&fakeLoader{ictx: testContext()}, store, results, email, apple, google)

	res, err := p.Run(context.Background(), testJob(t), "w1")
	if err != nil {
		t.Fatalf("a single platform failing permanently must not fail the job: %v", err)
	}

	if res.Wallets["apple"].Status != jobs.WalletStatusError {
		t.Fatalf("apple failure not recorded: %+v", res.Wallets["apple"])
	}
	if !res.WalletOK("google") {
		t.Fatalf("google must still succeed")
	}
	if !res.EmailSent {
		t.Fatalf("email should still go out with the surviving platform")
	}

	d := email.dispatches[0]
	if len(d.ApplePass) != 0 {
		t.Fatalf("failed platform must not contribute to the email")
	}
	if d.GoogleSaveURL == "" {
		t.Fatalf("surviving platform missing from the email")
	}
}

func TestRun_TransientWalletErrorAbortsRun(t *testing.T) {
	store := &fakeObjectStore{}
	results := &fakeResults{}
	google := &fakeBuilder{platform: "google", err: Transient(errors.New("provider 503"))}

	p := newTestPipeline(&fakeLoader{ictx: testContext()}, store, results, &fakeEmail{}, google)

	_, err := p.Run(context.Background(), testJob(t), "w1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsPermanent(err) {
		t.Fatalf("provider outage must stay transient, got %v", err)
	}

	// the artifact steps before the wallet must already be persisted
	persisted := results.last(t)
	if persisted.QRKey == "" || persisted.VCardKey == "" {
		t.Fatalf("completed steps must persist before the abort: %+v", persisted)
	}
}

func TestRun_UndeliverableEmailCompletesJob(t *testing.T) {
	store := &fakeObjectStore{}
	results := &fakeResults{}
	email := &fakeEmail{err: Permanent(errors.New("mailbox does not exist"))}
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok"}}

	p := newTestPipeline(&fakeLoader{ictx: testContext()}, store, results, email, google)

	res, err := p.Run(context.Background(), testJob(t), "w1")
	if err != nil {
		t.Fatalf("undeliverable email must not fail the job: %v", err)
	}
	if res.EmailSent {
		t.Fatalf("emailSent must be false")
	}
	if !res.WalletOK("google") {
		t.Fatalf("wallet outcome must survive")
	}
}

func TestRun_TransientEmailErrorRetries(t *testing.T) {
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok"}}
	p := newTestPipeline(&fakeLoader{ictx: testContext()}, &fakeObjectStore{}, &fakeResults{},
		&fakeEmail{err: Transient(errors.New("relay down"))}, google)

	_, err := p.Run(context.Background(), testJob(t), "w1")
	if err == nil || IsPermanent(err) {
		t.Fatalf("relay outage must classify transient, got %v", err)
	}
}

func TestRun_DeletedCardIsPermanent(t *testing.T) {
	p := newTestPipeline(&fakeLoader{err: fmt.Errorf("load: %w", card.ErrCardDeleted)}, &fakeObjectStore{}, &fakeResults{}, &fakeEmail{})

	_, err := p.Run(context.Background(), testJob(t), "w1")
	if !IsPermanent(err) {
		t.Fatalf("issuing for a deleted card must be permanent, got %v", err)
	}
}

func TestRun_NoDeliveryMethodSkipsEmail(t *testing.T) {
	email := &fakeEmail{}
	google := &fakeBuilder{platform: "google", result: wallet.PassResult{SaveURL: "https://pay.google.com/gp/v/save/tok"}}
	p := newTestPipeline(&fakeLoader{ictx: testContext()}, &fakeObjectStore{}, &fakeResults{}, email, google)

	payload, _ := jobs.IssuePassPayload{
		CardID: "c1", TenantID: "t1", EventID: "e1",
		DeliveryMethod: jobs.DeliveryNone,
		RequestedAt:    time.Now().UTC(),
	}.ToJSONRaw()

	j := testJob(t)
	j.Payload = payload

	res, err := p.Run(context.Background(), j, "w1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(email.dispatches) != 0 {
		t.Fatalf("delivery method none must not send email")
	}
	if res.EmailSent {
		t.Fatalf("emailSent must be false for none delivery")
	}
}
