package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/outreachpass/passhub/internal/http/handlers"
	"github.com/outreachpass/passhub/internal/repo/postgres"
	"github.com/outreachpass/passhub/internal/tracking"
)

type fakeDispatches struct {
	contexts map[string]tracking.DispatchContext
}

func (f *fakeDispatches) Get(_ context.Context, mid string) (tracking.DispatchContext, error) {
	dc, ok := f.contexts[mid]
	if !ok {
		return tracking.DispatchContext{}, tracking.ErrUnknownMessage
	}
	return dc, nil
}

type fakeEvents struct {
	recorded []postgres.EmailEvent
	err      error
}

func (f *fakeEvents) Record(_ context.Context, ev postgres.EmailEvent) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, ev)
	return nil
}

func trackingRouter(dispatches *fakeDispatches, events *fakeEvents) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewTrackingHandler(dispatches, events, nil)
	r := gin.New()
	r.GET("/track/email/open/:mid", h.Open)
	r.GET("/track/email/click", h.Click)
	return r
}

func TestOpen_RecordsAndServesPixel(t *testing.T) {
	dispatches := &fakeDispatches{contexts: map[string]tracking.DispatchContext{
		"m1": {JobID: "j1", CardID: "c1"},
	}}
	events := &fakeEvents{}
	r := trackingRouter(dispatches, events)

	req := httptest.NewRequest(http.MethodGet, "/track/email/open/m1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("content type = %s", ct)
	}
	if len(events.recorded) != 1 {
		t.Fatalf("expected one event, got %d", len(events.recorded))
	}

	ev := events.recorded[0]
	if ev.Kind != "open" || ev.MessageID != "m1" || ev.JobID != "j1" || ev.CardID != "c1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestOpen_UnknownMessageStillServesPixel(t *testing.T) {
	events := &fakeEvents{}
	r := trackingRouter(&fakeDispatches{}, events)

	req := httptest.NewRequest(http.MethodGet, "/track/email/open/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	if len(events.recorded) != 1 {
		t.Fatalf("the hit should still be recorded unattributed")
	}
	if events.recorded[0].JobID != "" {
		t.Fatalf("unattributed event must not carry a job id")
	}
}

func TestClick_RecordsAndRedirects(t *testing.T) {
	dispatches := &fakeDispatches{contexts: map[string]tracking.DispatchContext{
		"m1": {JobID: "j1", CardID: "c1"},
	}}
	events := &fakeEvents{}
	r := trackingRouter(dispatches, events)

	target := "https://pay.google.com/gp/v/save/abc"
	req := httptest.NewRequest(http.MethodGet,
		"/track/email/click?mid=m1&type=google_wallet&url="+target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("got status %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != target {
		t.Fatalf("redirect = %s", loc)
	}

	if len(events.recorded) != 1 {
		t.Fatalf("expected one event, got %d", len(events.recorded))
	}
	ev := events.recorded[0]
	if ev.Kind != "click" || ev.LinkType != "google_wallet" || ev.TargetURL != target {
		t.Fatalf("event = %+v", ev)
	}
}

func TestClick_RejectsNonHTTPTargets(t *testing.T) {
	events := &fakeEvents{}
	r := trackingRouter(&fakeDispatches{}, events)

	req := httptest.NewRequest(http.MethodGet,
		"/track/email/click?mid=m1&url=javascript:alert(1)", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", w.Code)
	}
	if len(events.recorded) != 0 {
		t.Fatalf("rejected targets must not be recorded")
	}
}

func TestClick_RedirectsEvenWhenRecordingFails(t *testing.T) {
	events := &fakeEvents{err: context.DeadlineExceeded}
	r := trackingRouter(&fakeDispatches{}, events)

	req := httptest.NewRequest(http.MethodGet,
		"/track/email/click?mid=m1&url=https://example.com/card", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("got status %d", w.Code)
	}
}
