package applewallet

import "time"

// passDefinition is the pass.json document. Structs (not maps) keep the
// serialized field order stable, which is what makes rebuilt archives
// byte-comparable for the same card revision and branding.
type passDefinition struct {
	FormatVersion      int    `json:"formatVersion"`
	PassTypeIdentifier string `json:"passTypeIdentifier"`
	SerialNumber       string `json:"serialNumber"`
	TeamIdentifier     string `json:"teamIdentifier"`
	OrganizationName   string `json:"organizationName"`
	Description        string `json:"description"`

	LogoText        string `json:"logoText,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	ForegroundColor string `json:"foregroundColor,omitempty"`
	LabelColor      string `json:"labelColor,omitempty"`

	ExpirationDate string `json:"expirationDate,omitempty"`

	Barcode  *barcode  `json:"barcode,omitempty"`
	Barcodes []barcode `json:"barcodes,omitempty"`

	EventTicket *ticketFields `json:"eventTicket,omitempty"`
}

type barcode struct {
	Message         string `json:"message"`
	Format          string `json:"format"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

type ticketFields struct {
	HeaderFields    []field `json:"headerFields"`
	PrimaryFields   []field `json:"primaryFields"`
	SecondaryFields []field `json:"secondaryFields"`
	AuxiliaryFields []field `json:"auxiliaryFields"`
	BackFields      []field `json:"backFields"`
}

type field struct {
	Key       string `json:"key"`
	Label     string `json:"label,omitempty"`
	Value     string `json:"value"`
	DateStyle string `json:"dateStyle,omitempty"`
	TimeStyle string `json:"timeStyle,omitempty"`
}

func formatExpiration(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
