package storage

import "fmt"

// Artifact keys embed the card revision so a stale object is never served
// after an edit, and a retried job overwrites its own output instead of
// piling up duplicates.

func QRKey(tenantID, cardID string, revision int) string {
	return fmt.Sprintf("qr/%s/%s/r%d.png", tenantID, cardID, revision)
}

func VCardKey(tenantID, cardID string, revision int) string {
	return fmt.Sprintf("vcard/%s/%s/r%d.vcf", tenantID, cardID, revision)
}

func ApplePassKey(tenantID, cardID, serial string) string {
	return fmt.Sprintf("passes/apple/%s/%s/%s.pkpass", tenantID, cardID, serial)
}
