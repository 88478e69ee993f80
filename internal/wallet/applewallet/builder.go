package applewallet

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"go.mozilla.org/pkcs7"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/issuance"
	"github.com/outreachpass/passhub/internal/wallet"
)

const (
	PlatformName = "apple"

	// ArchiveContentType is the registered MIME type for .pkpass bundles.
	ArchiveContentType = "application/vnd.apple.pkpass"
)

// ImageFetcher resolves branding media keys to bytes; the object store
// client satisfies this.
type ImageFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Builder assembles and signs .pkpass archives: pass.json plus branding
// images, a manifest of SHA-1 digests, and a detached PKCS#7 signature over
// the manifest using the issuer certificate chain.
type Builder struct {
	teamID     string
	passTypeID string
	orgName    string

	cert   *x509.Certificate
	key    crypto.PrivateKey
	wwdr   *x509.Certificate
	images ImageFetcher
}

func New(cfg config.AppleWalletConfig, images ImageFetcher) (*Builder, error) {
	cert, err := loadCertPEM(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("load signing certificate: %w", err)
	}

	key, err := loadKeyPEM(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	wwdr, err := loadCertPEM(cfg.WWDRCertPath)
	if err != nil {
		return nil, fmt.Errorf("load WWDR certificate: %w", err)
	}

	return &Builder{
		teamID:     cfg.TeamID,
		passTypeID: cfg.PassTypeID,
		orgName:    cfg.OrgName,
		cert:       cert,
		key:        key,
		wwdr:       wwdr,
		images:     images,
	}, nil
}

// NewWithMaterial wires certificates directly; used by tests.
func NewWithMaterial(teamID, passTypeID, orgName string, cert *x509.Certificate, key crypto.PrivateKey, wwdr *x509.Certificate, images ImageFetcher) *Builder {
	return &Builder{
		teamID:     teamID,
		passTypeID: passTypeID,
		orgName:    orgName,
		cert:       cert,
		key:        key,
		wwdr:       wwdr,
		images:     images,
	}
}

func (b *Builder) Platform() string { return PlatformName }

func (b *Builder) Build(ctx context.Context, in wallet.PassInput) (wallet.PassResult, error) {
	files, err := b.buildFiles(ctx, in)
	if err != nil {
		return wallet.PassResult{}, err
	}

	manifest, err := buildManifest(files)
	if err != nil {
		return wallet.PassResult{}, issuance.Permanent(fmt.Errorf("build manifest: %w", err))
	}
	files["manifest.json"] = manifest

	signature, err := b.sign(manifest)
	if err != nil {
		return wallet.PassResult{}, issuance.Permanent(fmt.Errorf("sign manifest: %w", err))
	}
	files["signature"] = signature

	archive, err := packageArchive(files)
	if err != nil {
		return wallet.PassResult{}, issuance.Permanent(fmt.Errorf("package archive: %w", err))
	}

	return wallet.PassResult{
		Platform:    PlatformName,
		Archive:     archive,
		ContentType: ArchiveContentType,
	}, nil
}

// buildFiles assembles pass.json plus whatever branding media the theme
// references. A missing or unreadable image is permanent: retrying will not
// make a malformed branding asset valid.
func (b *Builder) buildFiles(ctx context.Context, in wallet.PassInput) (map[string][]byte, error) {
	theme := in.Brand.Resolve(PlatformName)

	def := passDefinition{
		FormatVersion:      1,
		PassTypeIdentifier: b.passTypeID,
		SerialNumber:       in.Serial,
		TeamIdentifier:     b.teamID,
		OrganizationName:   b.orgName,
		Description:        in.Event.Name + " - Digital Contact Card",
		LogoText:           in.Event.Name,
		BackgroundColor:    theme.BackgroundColor,
		ForegroundColor:    theme.ForegroundColor,
		LabelColor:         theme.LabelColor,
		ExpirationDate:     formatExpiration(in.Event.EndAt),
		Barcode: &barcode{
			Message:         in.QRURL,
			Format:          "PKBarcodeFormatQR",
			MessageEncoding: "iso-8859-1",
			AltText:         in.Card.DisplayName,
		},
		Barcodes: []barcode{{
			Message:         in.QRURL,
			Format:          "PKBarcodeFormatQR",
			MessageEncoding: "iso-8859-1",
			AltText:         in.Card.DisplayName,
		}},
		EventTicket: &ticketFields{
			HeaderFields: []field{
				{Key: "event", Label: "EVENT", Value: in.Event.Name},
			},
			PrimaryFields: []field{
				{Key: "attendee", Label: "ATTENDEE", Value: in.Card.DisplayName},
			},
			SecondaryFields: secondaryFields(in),
			AuxiliaryFields: auxiliaryFields(in),
			BackFields: []field{
				{Key: "contact_card", Label: "Digital Contact Card", Value: in.QRURL},
				{Key: "revision", Label: "CARD REVISION", Value: strconv.Itoa(in.Card.Revision)},
			},
		},
	}

	passJSON, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, issuance.Permanent(fmt.Errorf("marshal pass.json: %w", err))
	}

	files := map[string][]byte{
		"pass.json": passJSON,
	}

	for name, key := range map[string]string{
		"icon.png":  theme.IconKey,
		"logo.png":  theme.LogoKey,
		"strip.png": theme.StripKey,
	} {
		if key == "" {
			continue
		}

		img, err := b.images.Get(ctx, key)
		if err != nil {
			return nil, issuance.Permanent(fmt.Errorf("fetch branding image %s: %w", key, err))
		}

		files[name] = img
		files[name[:len(name)-4]+"@2x.png"] = img
	}

	return files, nil
}

func secondaryFields(in wallet.PassInput) []field {
	fields := []field{}

	if !in.Event.StartAt.IsZero() {
		fields = append(fields,
			field{Key: "date", Label: "DATE", Value: in.Event.StartAt.UTC().Format("January 2, 2006"), DateStyle: "PKDateStyleMedium"},
			field{Key: "time", Label: "TIME", Value: in.Event.StartAt.UTC().Format("3:04 PM"), TimeStyle: "PKDateStyleShort"},
		)
	}
	return fields
}

func auxiliaryFields(in wallet.PassInput) []field {
	fields := []field{}

	if in.Card.OrgName != "" {
		fields = append(fields, field{Key: "organization", Label: "ORGANIZATION", Value: in.Card.OrgName})
	}
	if in.Card.Title != "" {
		fields = append(fields, field{Key: "title", Label: "TITLE", Value: in.Card.Title})
	}
	return fields
}

// buildManifest computes one SHA-1 digest per bundled file. json.Marshal
// sorts map keys, so the manifest bytes are stable for the same inputs.
func buildManifest(files map[string][]byte) ([]byte, error) {
	digests := make(map[string]string, len(files))

	for name, data := range files {
		sum := sha1.Sum(data)
		digests[name] = hex.EncodeToString(sum[:])
	}

	return json.MarshalIndent(digests, "", "  ")
}

// sign produces the detached PKCS#7 signature over the manifest with the
// issuer certificate and the WWDR intermediate in the chain.
func (b *Builder) sign(manifest []byte) ([]byte, error) {
	signed, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, err
	}

	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := signed.AddSigner(b.cert, b.key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, err
	}

	if b.wwdr != nil {
		signed.AddCertificate(b.wwdr)
	}

	signed.Detach()

	return signed.Finish()
}

// packageArchive zips the bundle with fixed entry order and timestamps, so
// identical file contents produce identical archive bytes.
func packageArchive(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, name := range names {
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func loadCertPEM(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	return x509.ParseCertificate(block.Bytes)
}

func loadKeyPEM(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
