package engine

import "github.com/google/uuid"

// TokenGenerator mints submission tokens for ledger correlation.
// Implemented by UUIDv7Generator (production) and testutil.FixedTokens
// (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 submission tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so tokens sort
// by creation time and ledger listings read chronologically even before
// the submitted_at column is consulted.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
