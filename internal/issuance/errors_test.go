package issuance

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	if !IsPermanent(Permanent(base)) {
		t.Fatalf("Permanent must classify as permanent")
	}
	if IsPermanent(Transient(base)) {
		t.Fatalf("Transient must not classify as permanent")
	}
	if !IsTransient(Transient(base)) {
		t.Fatalf("Transient must classify as transient")
	}

	// unclassified errors default to transient: retry is the safe default
	if !IsTransient(base) {
		t.Fatalf("bare errors must default to transient")
	}
	if IsTransient(nil) {
		t.Fatalf("nil is not transient")
	}

	if !IsTransient(Transientf("upload %s: timeout", "qr")) {
		t.Fatalf("Transientf must classify as transient")
	}
	if !IsPermanent(Permanentf("bad payload %q", "x")) {
		t.Fatalf("Permanentf must classify as permanent")
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := Permanentf("card %s not found", "c1")
	wrapped := fmt.Errorf("step load_card: %w", inner)

	if !IsPermanent(wrapped) {
		t.Fatalf("permanent marker must survive %%w wrapping")
	}
}

func TestUnwrapPreservesSentinels(t *testing.T) {
	sentinel := errors.New("card not found")
	err := Permanent(fmt.Errorf("load: %w", sentinel))

	if !errors.Is(err, sentinel) {
		t.Fatalf("errors.Is must see through the classification wrapper")
	}
}
