package contentbase

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 identifier. IDs sort by creation time, which keeps
// snapshot and document listings in insertion order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fall back to UUIDv4 if NewV7 fails (extremely rare)
		id = uuid.New()
	}
	return id.String()
}

// IsValidID checks if a string is a valid UUID
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
