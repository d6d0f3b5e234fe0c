// Package device issues the stable per-device identifiers that scope
// "my orders" filtering and session resumption. An identifier is minted once
// and persisted client-side; the server only ever mints when a client shows
// up without one. It is a filtering hint, not an authorization boundary.
package device

import (
	"strings"

	"github.com/google/uuid"
)

const idPrefix = "dev_"

// NewID mints a globally-unique device identifier.
func NewID() string {
	return idPrefix + uuid.NewString()
}

// OrNew returns the client-supplied identifier when present, otherwise mints
// a fresh one. Callers echo the result back so the client can persist it.
func OrNew(supplied *string) string {
	if supplied != nil {
		if v := strings.TrimSpace(*supplied); v != "" {
			return v
		}
	}
	return NewID()
}
