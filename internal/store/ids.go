package store

import "github.com/google/uuid"

// UUIDv7Generator generates time-sortable UUIDv7 row identifiers.
// The seq column orders events; the ID only makes a stored row globally
// addressable across databases.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
