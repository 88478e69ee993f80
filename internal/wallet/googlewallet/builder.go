package googlewallet

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/issuance"
	"github.com/outreachpass/passhub/internal/wallet"
)

const (
	PlatformName = "google"

	defaultAPIBase = "https://walletobjects.googleapis.com/walletobjects/v1"
	saveURLBase    = "https://pay.google.com/gp/v/save/"
	walletScope    = "https://www.googleapis.com/auth/wallet_object.issuer"

	tokenTTL = time.Hour
)

// Builder creates pass classes/objects against the Google Wallet REST API
// and mints signed save-to-wallet links. Object ids are deterministic per
// (tenant, card, job) so redelivery updates the remote object in place.
type Builder struct {
	issuerID    string
	saEmail     string
	classSuffix string
	origins     []string

	apiBase    string
	httpClient *http.Client
	signingKey *rsa.PrivateKey

	now func() time.Time
}

type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// New builds a Builder from the service account key file. The same RSA key
// authorizes REST calls (via the oauth2 JWT bearer flow) and signs save
// tokens.
func New(ctx context.Context, cfg config.GoogleWalletConfig) (*Builder, error) {
	raw, err := os.ReadFile(cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}

	var sa serviceAccountKey
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(raw, walletScope)
	if err != nil {
		return nil, fmt.Errorf("oauth2 config: %w", err)
	}

	email := cfg.ServiceAccountEmail
	if email == "" {
		email = sa.ClientEmail
	}

	return &Builder{
		issuerID:    cfg.IssuerID,
		saEmail:     email,
		classSuffix: cfg.ClassSuffix,
		origins:     cfg.Origins,
		apiBase:     defaultAPIBase,
		httpClient:  jwtCfg.Client(ctx),
		signingKey:  key,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewWithClient wires an explicit HTTP client and API base; used by tests.
func NewWithClient(cfg config.GoogleWalletConfig, key *rsa.PrivateKey, client *http.Client, apiBase string) *Builder {
	return &Builder{
		issuerID:    cfg.IssuerID,
		saEmail:     cfg.ServiceAccountEmail,
		classSuffix: cfg.ClassSuffix,
		origins:     cfg.Origins,
		apiBase:     apiBase,
		httpClient:  client,
		signingKey:  key,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (b *Builder) Platform() string { return PlatformName }

func (b *Builder) Build(ctx context.Context, in wallet.PassInput) (wallet.PassResult, error) {
	classID, err := b.ensureClass(ctx, in)
	if err != nil {
		return wallet.PassResult{}, fmt.Errorf("ensure class: %w", err)
	}

	objectID, err := b.ensureObject(ctx, classID, in)
	if err != nil {
		return wallet.PassResult{}, fmt.Errorf("ensure object: %w", err)
	}

	token, err := b.saveToken(objectID)
	if err != nil {
		return wallet.PassResult{}, issuance.Permanent(fmt.Errorf("sign save token: %w", err))
	}

	return wallet.PassResult{
		Platform: PlatformName,
		SaveURL:  saveURLBase + token,
		ObjectID: objectID,
	}, nil
}

// ClassIDFor derives the pass class id for an event. One class per event and
// suffix; bumping the suffix in config forces a fresh class when Google adds
// required fields.
func (b *Builder) ClassIDFor(eventID string) string {
	short := sanitizeID("event-" + eventID + "-" + b.classSuffix)
	return b.issuerID + "." + short
}

// ObjectIDFor is the deterministic remote object id for one issuance.
func (b *Builder) ObjectIDFor(serial string) string {
	return b.issuerID + "." + sanitizeID(serial)
}

// ensureClass attempts to create the pass class for the event; an existing
// class (409) is success.
func (b *Builder) ensureClass(ctx context.Context, in wallet.PassInput) (string, error) {
	fullClassID := b.ClassIDFor(in.Event.ID)

	resource := map[string]any{
		"id":           fullClassID,
		"eventId":      sanitizeID("event-" + in.Event.ID + "-" + b.classSuffix),
		"issuerName":   in.Brand.Name,
		"reviewStatus": "UNDER_REVIEW",
		"eventName":    localized(in.Event.Name),
		"textModulesData": []map[string]string{
			{
				"id":     "contact_card_info",
				"header": "Digital Contact Card",
				"body":   "Scan the QR code or tap to view contact information",
			},
		},
	}

	status, body, err := b.post(ctx, "/eventTicketClass", resource)
	if err != nil {
		return "", issuance.Transient(err)
	}

	switch {
	case status == http.StatusOK, status == http.StatusConflict:
		return fullClassID, nil
	default:
		return "", classifyStatus(status, "create class", body)
	}
}

// ensureObject creates the pass object; on conflict it updates the existing
// object in place, which is what makes redelivery safe.
func (b *Builder) ensureObject(ctx context.Context, fullClassID string, in wallet.PassInput) (string, error) {
	fullObjectID := b.ObjectIDFor(in.Serial)

	resource := map[string]any{
		"id":               fullObjectID,
		"classId":          fullClassID,
		"state":            "active",
		"ticketHolderName": in.Card.DisplayName,
		"eventName":        localized(in.Event.Name),
		"barcode": map[string]string{
			"type":          "QR_CODE",
			"value":         in.QRURL,
			"alternateText": in.Card.DisplayName,
		},
		"textModulesData": objectTextModules(in),
	}

	if !in.Event.StartAt.IsZero() {
		resource["eventDateTime"] = map[string]string{
			"start": in.Event.StartAt.UTC().Format(time.RFC3339),
		}
	}

	status, body, err := b.post(ctx, "/eventTicketObject", resource)
	if err != nil {
		return "", issuance.Transient(err)
	}

	switch {
	case status == http.StatusOK:
		return fullObjectID, nil

	case status == http.StatusConflict:
		upStatus, upBody, upErr := b.put(ctx, "/eventTicketObject/"+fullObjectID, resource)
		if upErr != nil {
			return "", issuance.Transient(upErr)
		}
		if upStatus == http.StatusOK {
			return fullObjectID, nil
		}
		return "", classifyStatus(upStatus, "update object", upBody)

	default:
		return "", classifyStatus(status, "create object", body)
	}
}

// saveToken mints the short-lived RS256 token embedded in the save URL.
// Expiry is the only freshness control the provider enforces, so keep it
// short. The origins claim is set ONLY when non-empty: an empty list is
// rejected for links opened from email clients.
func (b *Builder) saveToken(fullObjectID string) (string, error) {
	now := b.now()

	claims := jwt.MapClaims{
		"iss": b.saEmail,
		"aud": "google",
		"typ": "savetowallet",
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
		"payload": map[string]any{
			"eventTicketObjects": []map[string]string{
				{"id": fullObjectID},
			},
		},
	}

	if len(b.origins) > 0 {
		claims["origins"] = b.origins
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(b.signingKey)
}

func objectTextModules(in wallet.PassInput) []map[string]string {
	mods := make([]map[string]string, 0, 2)

	if in.Card.OrgName != "" {
		mods = append(mods, map[string]string{
			"id":     "organization",
			"header": "ORGANIZATION",
			"body":   in.Card.OrgName,
		})
	}
	if in.Card.Title != "" {
		mods = append(mods, map[string]string{
			"id":     "title",
			"header": "TITLE",
			"body":   in.Card.Title,
		})
	}
	return mods
}

func localized(value string) map[string]any {
	return map[string]any{
		"defaultValue": map[string]string{
			"language": "en-US",
			"value":    value,
		},
	}
}

func (b *Builder) post(ctx context.Context, path string, body any) (int, string, error) {
	return b.do(ctx, http.MethodPost, path, body)
}

func (b *Builder) put(ctx context.Context, path string, body any) (int, string, error) {
	return b.do(ctx, http.MethodPut, path, body)
}

func (b *Builder) do(ctx context.Context, method, path string, body any) (int, string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, method, b.apiBase+path, bytes.NewReader(buf))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	return resp.StatusCode, string(respBody), nil
}

// classifyStatus maps provider status codes onto the retry taxonomy:
// rate limits and 5xx are worth retrying, any other 4xx means the payload or
// credentials are wrong and retrying cannot help.
func classifyStatus(status int, op, body string) error {
	err := fmt.Errorf("%s: provider returned %d: %s", op, status, strings.TrimSpace(body))

	if status == http.StatusTooManyRequests || status >= 500 {
		return issuance.Transient(err)
	}
	return issuance.Permanent(err)
}

// sanitizeID keeps remote ids within Google's allowed charset.
func sanitizeID(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
