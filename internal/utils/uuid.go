package utils

import "github.com/google/uuid"

// IsUUID reports whether s parses as a UUID. Path params go through this
// before hitting the database.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
