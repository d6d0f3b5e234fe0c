package billing

import (
	"strings"
	"time"
)

const DefaultSessionTTL = 6 * time.Hour

// NormalizeCode trims the owner-supplied contact identifier. The code is an
// opaque key; shape checks only, no format validation beyond that.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func ValidateCode(code string) error {
	code = NormalizeCode(code)
	if len(code) < 4 || len(code) > 32 {
		return ErrValidation
	}
	if strings.ContainsAny(code, " \t\n") {
		return ErrValidation
	}
	return nil
}

func ValidateTableID(tableID string) error {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" || len(tableID) > 32 {
		return ErrValidation
	}
	// A base table id must not carry a split suffix; those are allocated,
	// never client-supplied.
	if strings.Contains(tableID, ".") {
		return ErrValidation
	}
	return nil
}

// IsExpired reports whether the session must not be used at instant now.
// Callers holding a cached session check this locally before trusting it.
func (s Session) IsExpired(now time.Time) bool {
	return !s.IsActive || !s.ExpiresAt.After(now)
}

func (s Session) ExpiresIn(now time.Time) time.Duration {
	if s.IsExpired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
