package applewallet

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/outreachpass/passhub/internal/domain/brand"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/event"
	"github.com/outreachpass/passhub/internal/issuance"
	"github.com/outreachpass/passhub/internal/wallet"
)

type fakeImages struct {
	files map[string][]byte
	err   error
}

func (f *fakeImages) Get(_ context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.files[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return b, nil
}

func selfSignedCert(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Pass Type ID: pass.io.outreachpass.event"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return cert, key
}

func testBuilder(t *testing.T) *Builder {
	t.Helper()

	cert, key := selfSignedCert(t)

	images := &fakeImages{files: map[string][]byte{
		"brand/t1/icon.png": []byte("icon-bytes"),
		"brand/t1/logo.png": []byte("logo-bytes"),
	}}

	return NewWithMaterial("TEAM123456", "pass.io.outreachpass.event", "OutreachPass", cert, key, nil, images)
}

func testInput() wallet.PassInput {
	return wallet.PassInput{
		Card: card.Card{
			ID:          "c1",
			TenantID:    "t1",
			DisplayName: "Ada Lovelace",
			OrgName:     "Analytical Engines Ltd",
			Title:       "Chief Engineer",
			Revision:    2,
		},
		Event: event.Event{
			ID:      "e1",
			Name:    "GopherCon 2026",
			StartAt: time.Date(2026, 9, 20, 9, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2026, 9, 22, 18, 0, 0, 0, time.UTC),
		},
		Brand: brand.Brand{
			Name: "OutreachPass",
			Theme: brand.Theme{
				BackgroundColor: "#112233",
				IconKey:         "brand/t1/icon.png",
				LogoKey:         "brand/t1/logo.png",
			},
		},
		Serial: wallet.SerialFor("t1", "c1", "j1"),
		QRURL:  "https://cards.outreachpass.io/cards/c1",
	}
}

func unzipAll(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = b
	}
	return out
}

func TestBuild_ArchiveContents(t *testing.T) {
	b := testBuilder(t)

	res, err := b.Build(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if res.ContentType != ArchiveContentType {
		t.Fatalf("content type = %s", res.ContentType)
	}

	entries := unzipAll(t, res.Archive)

	for _, name := range []string{"pass.json", "manifest.json", "signature", "icon.png", "icon@2x.png", "logo.png", "logo@2x.png"} {
		if _, ok := entries[name]; !ok {
			t.Fatalf("archive missing %s; has %v", name, keysOf(entries))
		}
	}

	var def map[string]any
	if err := json.Unmarshal(entries["pass.json"], &def); err != nil {
		t.Fatalf("pass.json invalid: %v", err)
	}

	if def["serialNumber"] != wallet.SerialFor("t1", "c1", "j1") {
		t.Fatalf("serial = %v", def["serialNumber"])
	}
	if def["expirationDate"] != "2026-09-22T18:00:00Z" {
		t.Fatalf("expiration must be the event end, got %v", def["expirationDate"])
	}
	if def["backgroundColor"] != "#112233" {
		t.Fatalf("brand background not applied: %v", def["backgroundColor"])
	}
}

func TestBuild_ManifestDigestsMatchFiles(t *testing.T) {
	b := testBuilder(t)

	res, err := b.Build(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	entries := unzipAll(t, res.Archive)

	var digests map[string]string
	if err := json.Unmarshal(entries["manifest.json"], &digests); err != nil {
		t.Fatalf("manifest invalid: %v", err)
	}

	for name, data := range entries {
		if name == "manifest.json" || name == "signature" {
			continue
		}
		sum := sha1.Sum(data)
		if digests[name] != hex.EncodeToString(sum[:]) {
			t.Fatalf("digest mismatch for %s", name)
		}
	}
}

func TestBuild_DeterministicForSameInput(t *testing.T) {
	b := testBuilder(t)
	in := testInput()

	first, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	e1 := unzipAll(t, first.Archive)
	e2 := unzipAll(t, second.Archive)

	// pass.json and manifest.json must be byte-identical; the signature may
	// differ because PKCS#7 stamps a signing-time attribute.
	for _, name := range []string{"pass.json", "manifest.json", "icon.png", "logo.png"} {
		if !bytes.Equal(e1[name], e2[name]) {
			t.Fatalf("%s differs between identical builds", name)
		}
	}
}

func TestBuild_RevisionChangesContent(t *testing.T) {
	b := testBuilder(t)

	in := testInput()
	first, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	in.Card.Revision = 3
	second, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	p1 := unzipAll(t, first.Archive)["pass.json"]
	p2 := unzipAll(t, second.Archive)["pass.json"]

	if bytes.Equal(p1, p2) {
		t.Fatalf("a card edit must change the pass content")
	}
	if !strings.Contains(string(p2), `"value": "3"`) {
		t.Fatalf("new revision not reflected in pass.json")
	}
}

func TestBuild_SignatureVerifies(t *testing.T) {
	cert, key := selfSignedCert(t)
	b := NewWithMaterial("TEAM123456", "pass.io.outreachpass.event", "OutreachPass", cert, key, nil, &fakeImages{})

	in := testInput()
	in.Brand.Theme.IconKey = ""
	in.Brand.Theme.LogoKey = ""

	res, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	entries := unzipAll(t, res.Archive)

	p7, err := pkcs7.Parse(entries["signature"])
	if err != nil {
		t.Fatalf("parse signature: %v", err)
	}

	p7.Content = entries["manifest.json"]
	if err := p7.Verify(); err != nil {
		t.Fatalf("detached signature does not verify over the manifest: %v", err)
	}
}

func TestBuild_MissingBrandingIsPermanent(t *testing.T) {
	cert, key := selfSignedCert(t)
	b := NewWithMaterial("TEAM123456", "pass.io.outreachpass.event", "OutreachPass", cert, key, nil,
		&fakeImages{err: errors.New("object not found")})

	_, err := b.Build(context.Background(), testInput())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !issuance.IsPermanent(err) {
		t.Fatalf("broken branding asset must be permanent, got %v", err)
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
