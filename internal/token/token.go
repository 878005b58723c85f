// Package token produces cross-process-stable identifiers for opaque
// app-identity values.
//
// An identity is the canonical serialization of the token payload in a
// reversible text encoding (base64). Process-local hashes are forbidden:
// they are not guaranteed stable across processes or restarts.
package token

import (
	"encoding/base64"

	"github.com/onelife/shieldd/internal/domain"
)

// Identity encodes a token into its stable string identifier.
func Identity(tok domain.AppToken) string {
	return base64.StdEncoding.EncodeToString(tok.Payload)
}

// Decode inverts Identity. It reports false when the identifier is not a
// valid encoding, e.g. when the platform's token format changed.
func Decode(id string) (domain.AppToken, bool) {
	if id == "" {
		return domain.AppToken{}, false
	}
	payload, err := base64.StdEncoding.DecodeString(id)
	if err != nil || len(payload) == 0 {
		return domain.AppToken{}, false
	}
	return domain.AppToken{Payload: payload}, true
}

// Resolver maps identifiers back to tokens. Direct decoding is tried
// first; on a miss it scans the persisted intention selection, which
// covers identifiers written by an older encoding scheme.
//
// A failed resolution is a degraded-but-safe condition, not an error:
// the reconciler falls back to conservative over-blocking.
type Resolver struct {
	store domain.StateStore
}

// NewResolver creates a resolver backed by the shared state store.
func NewResolver(store domain.StateStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the token for an identifier, or false when it cannot
// be recovered.
func (r *Resolver) Resolve(id string) (domain.AppToken, bool) {
	if tok, ok := Decode(id); ok {
		return tok, true
	}

	// Legacy identifiers: search the stored selection for a token whose
	// current identity matches.
	for _, tok := range r.store.IntentionSelection().AppTokens {
		if Identity(tok) == id {
			return tok, true
		}
	}
	return domain.AppToken{}, false
}
