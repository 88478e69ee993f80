package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/job"
	"github.com/outreachpass/passhub/internal/http/handlers"
	"github.com/outreachpass/passhub/internal/jobs"
)

const (
	testCardID  = "6f1e1a9a-8a3b-4a6e-9a7a-111111111111"
	testEventID = "6f1e1a9a-8a3b-4a6e-9a7a-222222222222"
	testJobID   = "6f1e1a9a-8a3b-4a6e-9a7a-333333333333"
)

type fakeJobsStore struct {
	created   []job.CreateRequest
	createErr error
	byID      map[string]job.Job
	byIdemKey map[string]job.Job
}

func (f *fakeJobsStore) Create(_ context.Context, req job.CreateRequest) (job.Job, error) {
	if f.createErr != nil {
		return job.Job{}, f.createErr
	}
	f.created = append(f.created, req)
	return job.New(req), nil
}

func (f *fakeJobsStore) GetByID(_ context.Context, id string) (job.Job, error) {
	j, ok := f.byID[id]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeJobsStore) GetByIdempotencyKey(_ context.Context, key string) (job.Job, error) {
	j, ok := f.byIdemKey[key]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}

type fakeCardsReader struct {
	card card.Card
	err  error
}

func (f *fakeCardsReader) GetByID(_ context.Context, _ string) (card.Card, error) {
	if f.err != nil {
		return card.Card{}, f.err
	}
	return f.card, nil
}

func testCard() card.Card {
	return card.Card{
		ID:          testCardID,
		TenantID:    "t1",
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
		Revision:    1,
	}
}

func jobsRouter(store *fakeJobsStore, cards *fakeCardsReader) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewJobsHandler(store, cards)
	r := gin.New()
	r.POST("/cards/:id/issue", h.IssuePass)
	r.GET("/jobs/:id", h.GetJob)
	return r
}

func postIssue(t *testing.T, r *gin.Engine, cardID, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/cards/"+cardID+"/issue", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssuePass_Enqueues(t *testing.T) {
	store := &fakeJobsStore{}
	r := jobsRouter(store, &fakeCardsReader{card: testCard()})

	w := postIssue(t, r, testCardID, `{"eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(store.created))
	}

	req := store.created[0]
	if req.Type != string(jobs.JobIssuePass) {
		t.Fatalf("job type = %s", req.Type)
	}

	decoded, err := jobs.DecodePayload(jobs.JobIssuePass, req.Payload)
	if err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	p := decoded.(jobs.IssuePassPayload)
	if p.CardID != testCardID || p.EventID != testEventID || p.TenantID != "t1" {
		t.Fatalf("payload = %+v", p)
	}
	if p.DeliveryMethod != jobs.DeliveryEmail {
		t.Fatalf("delivery should default to email, got %s", p.DeliveryMethod)
	}
}

func TestIssuePass_ClientJobIDSetsIdempotencyKey(t *testing.T) {
	store := &fakeJobsStore{}
	r := jobsRouter(store, &fakeCardsReader{card: testCard()})

	w := postIssue(t, r, testCardID, `{"jobId":"`+testJobID+`","eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one enqueue, got %d", len(store.created))
	}

	req := store.created[0]
	if req.ID != testJobID {
		t.Fatalf("create must carry the client job id, got %q", req.ID)
	}
	if req.IdempotencyKey == nil || *req.IdempotencyKey != testJobID {
		t.Fatalf("create must carry the client job id as idempotency key, got %v", req.IdempotencyKey)
	}
}

func TestIssuePass_ServerGeneratedJobHasNoIdempotencyKey(t *testing.T) {
	store := &fakeJobsStore{}
	r := jobsRouter(store, &fakeCardsReader{card: testCard()})

	w := postIssue(t, r, testCardID, `{"eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if store.created[0].IdempotencyKey != nil {
		t.Fatalf("no client job id means no idempotency key, got %v", *store.created[0].IdempotencyKey)
	}
}

func TestIssuePass_ClientJobIDIsIdempotent(t *testing.T) {
	existing := job.New(job.CreateRequest{ID: testJobID, Type: string(jobs.JobIssuePass)})
	store := &fakeJobsStore{
		createErr: &pgconn.PgError{Code: "23505"},
		byIdemKey: map[string]job.Job{testJobID: existing},
	}
	r := jobsRouter(store, &fakeCardsReader{card: testCard()})

	w := postIssue(t, r, testCardID, `{"jobId":"`+testJobID+`","eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["alreadyEnqueued"] != true {
		t.Fatalf("duplicate submit must report alreadyEnqueued, body=%s", w.Body.String())
	}
	if resp["jobId"] != testJobID {
		t.Fatalf("must return the existing job id, got %v", resp["jobId"])
	}
}

func TestIssuePass_CardNotFound(t *testing.T) {
	r := jobsRouter(&fakeJobsStore{}, &fakeCardsReader{err: card.ErrCardNotFound})

	w := postIssue(t, r, testCardID, `{"eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestIssuePass_DeletedCardIsGone(t *testing.T) {
	r := jobsRouter(&fakeJobsStore{}, &fakeCardsReader{err: card.ErrCardDeleted})

	w := postIssue(t, r, testCardID, `{"eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusGone {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestIssuePass_EmailDeliveryNeedsAddress(t *testing.T) {
	c := testCard()
	c.Email = ""
	store := &fakeJobsStore{}
	r := jobsRouter(store, &fakeCardsReader{card: c})

	w := postIssue(t, r, testCardID, `{"eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", w.Code)
	}
	if len(store.created) != 0 {
		t.Fatalf("nothing should be enqueued")
	}

	// explicit delivery "none" is fine without an address
	w = postIssue(t, r, testCardID, `{"eventId":"`+testEventID+`","deliveryMethod":"none"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
}

func TestIssuePass_InvalidCardID(t *testing.T) {
	r := jobsRouter(&fakeJobsStore{}, &fakeCardsReader{card: testCard()})

	w := postIssue(t, r, "not-a-uuid", `{"eventId":"`+testEventID+`"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", w.Code)
	}
}

func TestGetJob_ReturnsDecodedResult(t *testing.T) {
	res := jobs.Result{QRKey: "qr/t1/c1/r1.png", EmailSent: true, MessageID: "m1"}
	res.SetWallet("google", jobs.WalletResult{Status: jobs.WalletStatusOK, URL: "https://pay.google.com/gp/v/save/x"})
	raw, _ := res.ToJSONRaw()

	j := job.Job{
		ID:          testJobID,
		Type:        string(jobs.JobIssuePass),
		Status:      job.StatusCompleted,
		Attempts:    1,
		MaxAttempts: 5,
		Result:      raw,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	store := &fakeJobsStore{byID: map[string]job.Job{testJobID: j}}
	r := jobsRouter(store, &fakeCardsReader{card: testCard()})

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+testJobID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("status reads should carry an ETag")
	}

	var view struct {
		Status string       `json:"status"`
		Result *jobs.Result `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.Status != string(job.StatusCompleted) {
		t.Fatalf("status = %s", view.Status)
	}
	if view.Result == nil || !view.Result.WalletOK("google") {
		t.Fatalf("result not exposed: %+v", view.Result)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	r := jobsRouter(&fakeJobsStore{}, &fakeCardsReader{card: testCard()})

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+testJobID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d", w.Code)
	}
}
