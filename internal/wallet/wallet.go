package wallet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/outreachpass/passhub/internal/domain/brand"
	"github.com/outreachpass/passhub/internal/domain/card"
	"github.com/outreachpass/passhub/internal/domain/event"
)

// PassInput carries everything a platform builder needs. The orchestrator
// fills it once and hands the same input to every configured builder.
type PassInput struct {
	Card  card.Card
	Event event.Event
	Brand brand.Brand

	// Serial is the deterministic identifier derived from
	// (tenant, card, job); builders MUST use it for remote object ids and
	// archive serial numbers so queue redelivery updates in place.
	Serial string

	// QRURL is the public card URL encoded in barcodes.
	QRURL string
}

// PassResult is the platform-specific artifact. Exactly one of SaveURL or
// Archive is populated depending on the platform's delivery style.
type PassResult struct {
	Platform string

	// REST/JWT platforms: a signed save link the recipient taps.
	SaveURL  string
	ObjectID string

	// Archive platforms: the signed bundle, delivered as an attachment or a
	// stored download.
	Archive     []byte
	ContentType string
}

// PassBuilder is the capability interface both wallet backends implement.
// The pipeline iterates configured builders without branching on platform.
type PassBuilder interface {
	Platform() string
	Build(ctx context.Context, in PassInput) (PassResult, error)
}

// SerialFor derives the pass serial / remote object id as a pure function of
// (tenant, card, job). Using the job id in the derivation keeps redelivery of
// the same job idempotent while a brand-new issuance for the same card gets a
// fresh identity.
func SerialFor(tenantID, cardID, jobID string) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + cardID + "|" + jobID))
	return hex.EncodeToString(sum[:16])
}
