package jobs

import "strings"

// ValidatePayload performs minimal structural validation on decoded payloads
// before a job is enqueued. Business checks (card exists, tenant matches)
// belong to the pipeline, which classifies them as permanent failures.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobIssuePass:
		var p IssuePassPayload
		switch v := payload.(type) {
		case IssuePassPayload:
			p = v
		case *IssuePassPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.CardID) == "" || trim(p.TenantID) == "" || trim(p.EventID) == "" {
			return ErrInvalidJobPayload
		}
		if !p.DeliveryMethod.IsValid() {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
