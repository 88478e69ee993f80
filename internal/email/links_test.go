package email

import (
	"strings"
	"testing"
)

func TestMessageIDFor_Deterministic(t *testing.T) {
	if MessageIDFor("job-1") != MessageIDFor("job-1") {
		t.Fatalf("message id must be a pure function of the job id")
	}
	if MessageIDFor("job-1") == MessageIDFor("job-2") {
		t.Fatalf("distinct jobs must get distinct message ids")
	}
}

func TestClassifyLink(t *testing.T) {
	cases := map[string]string{
		"https://pay.google.com/gp/v/save/abc":          LinkTypeGoogleWallet,
		"https://cdn.example.com/passes/apple/p.pkpass": LinkTypeAppleWallet,
		"https://app.outreachpass.io/cards/c1":          LinkTypeCard,
		"https://example.com/about":                     LinkTypeOther,
	}

	for target, want := range cases {
		if got := ClassifyLink(target); got != want {
			t.Fatalf("ClassifyLink(%s) = %s, want %s", target, got, want)
		}
	}
}

func TestRewriteLinks_RoutesThroughClickEndpoint(t *testing.T) {
	body := `<html><body><a href="https://pay.google.com/gp/v/save/tok">Add to Google Wallet</a></body></html>`

	out, err := RewriteLinks(body, "https://app.outreachpass.io", "m1")
	if err != nil {
		t.Fatalf("RewriteLinks error: %v", err)
	}

	if strings.Contains(out, `href="https://pay.google.com`) {
		t.Fatalf("original href must be replaced:\n%s", out)
	}
	if !strings.Contains(out, "/track/email/click?") {
		t.Fatalf("rewritten href must hit the click endpoint:\n%s", out)
	}
	if !strings.Contains(out, "mid=m1") {
		t.Fatalf("click link must carry the message id:\n%s", out)
	}
	if !strings.Contains(out, "type=google_wallet") {
		t.Fatalf("click link must carry the link type:\n%s", out)
	}
}

func TestRewriteLinks_AppendsOpenPixel(t *testing.T) {
	out, err := RewriteLinks(`<html><body><p>hi</p></body></html>`, "https://app.outreachpass.io", "m1")
	if err != nil {
		t.Fatalf("RewriteLinks error: %v", err)
	}

	if !strings.Contains(out, "/track/email/open/m1") {
		t.Fatalf("open pixel missing:\n%s", out)
	}
}

func TestRewriteLinks_SkipsAlreadyTrackedAndRelative(t *testing.T) {
	body := `<html><body>` +
		`<a href="https://app.outreachpass.io/track/email/click?url=x&mid=m1&type=other">tracked</a>` +
		`<a href="mailto:team@outreachpass.io">mail</a>` +
		`</body></html>`

	out, err := RewriteLinks(body, "https://app.outreachpass.io", "m1")
	if err != nil {
		t.Fatalf("RewriteLinks error: %v", err)
	}

	if strings.Count(out, "/track/email/click") != 1 {
		t.Fatalf("already-tracked link must not be double wrapped:\n%s", out)
	}
	if !strings.Contains(out, `href="mailto:team@outreachpass.io"`) {
		t.Fatalf("non-http links must be left alone:\n%s", out)
	}
}
