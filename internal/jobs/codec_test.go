package jobs

import (
	"testing"
	"time"
)

func TestEncodeDecode_IssuePass(t *testing.T) {
	payload := IssuePassPayload{
		CardID:         "card-123",
		AttendeeID:     "att-9",
		TenantID:       "tenant-1",
		EventID:        "event-7",
		DeliveryMethod: DeliveryEmail,
		RequestedAt:    time.Now().UTC(),
	}

	b, err := EncodePayload(JobIssuePass, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	decoded, err := DecodePayload(JobIssuePass, b)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(IssuePassPayload)
	if !ok {
		t.Fatalf("expected IssuePassPayload, got %T", decoded)
	}

	if p.CardID != payload.CardID {
		t.Fatalf("expected cardId %s, got %s", payload.CardID, p.CardID)
	}
	if p.DeliveryMethod != DeliveryEmail {
		t.Fatalf("expected delivery method email, got %s", p.DeliveryMethod)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobIssuePass, struct{ X int }{X: 1})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if err != ErrPayloadTypeMismatch {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestValidatePayload_RequiredIDs(t *testing.T) {
	err := ValidatePayload(JobIssuePass, IssuePassPayload{
		CardID:         "",
		TenantID:       "t1",
		EventID:        "e1",
		DeliveryMethod: DeliveryEmail,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidatePayload_DeliveryMethod(t *testing.T) {
	err := ValidatePayload(JobIssuePass, IssuePassPayload{
		CardID:         "c1",
		TenantID:       "t1",
		EventID:        "e1",
		DeliveryMethod: DeliveryMethod("pigeon"),
	})
	if err != ErrInvalidJobPayload {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}

func TestDecodeResult_Empty(t *testing.T) {
	r, err := DecodeResult(nil)
	if err != nil {
		t.Fatalf("DecodeResult error: %v", err)
	}
	if r.EmailSent {
		t.Fatalf("empty result should not report email sent")
	}
	if r.WalletOK("google") {
		t.Fatalf("empty result should not report wallet ok")
	}
}

func TestResult_RoundTripAndWalletOK(t *testing.T) {
	var r Result
	r.QRKey = "qr/t1/c1/r3.png"
	r.SetWallet("google", WalletResult{Status: WalletStatusOK, URL: "https://pay.google.com/gp/v/save/x"})
	r.SetWallet("apple", WalletResult{Status: WalletStatusError, Error: "bad signing key"})

	raw, err := r.ToJSONRaw()
	if err != nil {
		t.Fatalf("ToJSONRaw error: %v", err)
	}

	back, err := DecodeResult(raw)
	if err != nil {
		t.Fatalf("DecodeResult error: %v", err)
	}

	if !back.WalletOK("google") {
		t.Fatalf("expected google wallet ok")
	}
	if back.WalletOK("apple") {
		t.Fatalf("expected apple wallet not ok")
	}
	if back.QRKey != r.QRKey {
		t.Fatalf("qr key mismatch: %s", back.QRKey)
	}
}
