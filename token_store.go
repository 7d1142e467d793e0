package authgate

import "context"

// The three persisted keys are the system's only durable state machine
// representation. Values are JSON-encoded strings/booleans.
const (
	// KeySessionToken is an exported constant or variable used by the authentication core.
	KeySessionToken = "token"
	// KeyOTPRequired is an exported constant or variable used by the authentication core.
	KeyOTPRequired = "otp_required"
	// KeyLoginEmail is an exported constant or variable used by the authentication core.
	KeyLoginEmail = "login_email"
)

// TokenStore is the persisted key-value collaborator holding the session
// secrets. Implementations provide last-write-wins semantics per key and must
// distinguish an absent key ([ErrKeyNotFound]) from an unreachable backend
// ([ErrTokenStoreUnavailable]); the lifecycle controller relies on that
// distinction to tell "no session" apart from "storage broken".
//
// The Engine serializes multi-key commits above this interface, so
// implementations only need per-key atomicity.
//
//	Docs: docs/token_store.md
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
