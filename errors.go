package authgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredentialsMissing is an exported constant or variable used by the authentication core.
	ErrCredentialsMissing = errors.New("email and password required")
	// ErrLoginRejected is an exported constant or variable used by the authentication core.
	ErrLoginRejected = errors.New("login rejected")
	// ErrLoginSuperseded is an exported constant or variable used by the authentication core.
	ErrLoginSuperseded = errors.New("login superseded by a newer attempt")
	// ErrBackendUnavailable is an exported constant or variable used by the authentication core.
	ErrBackendUnavailable = errors.New("identity backend unavailable")
	// ErrNotPendingStepUp is an exported constant or variable used by the authentication core.
	ErrNotPendingStepUp = errors.New("no step-up challenge pending")
	// ErrOTPCodeMalformed is an exported constant or variable used by the authentication core.
	ErrOTPCodeMalformed = errors.New("otp code malformed")
	// ErrOTPInvalid is an exported constant or variable used by the authentication core.
	ErrOTPInvalid = errors.New("otp code invalid")
	// ErrOTPAttemptsExceeded is an exported constant or variable used by the authentication core.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrResendCooldown is an exported constant or variable used by the authentication core.
	ErrResendCooldown = errors.New("otp resend cooldown active")
	// ErrNotAuthenticated is an exported constant or variable used by the authentication core.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrQRCodeMalformed is an exported constant or variable used by the authentication core.
	ErrQRCodeMalformed = errors.New("scanned code malformed")
	// ErrQRCodeInvalid is an exported constant or variable used by the authentication core.
	ErrQRCodeInvalid = errors.New("scanned code invalid or expired")
	// ErrQRCodeExpired is an exported constant or variable used by the authentication core.
	ErrQRCodeExpired = errors.New("approval request expired")
	// ErrQRValidationInFlight is an exported constant or variable used by the authentication core.
	ErrQRValidationInFlight = errors.New("validation already in flight for this code")
	// ErrQRAlreadyDecided is an exported constant or variable used by the authentication core.
	ErrQRAlreadyDecided = errors.New("approval request already decided")
	// ErrQRUnknownRequest is an exported constant or variable used by the authentication core.
	ErrQRUnknownRequest = errors.New("unknown approval request")
	// ErrKeyNotFound is an exported constant or variable used by the authentication core.
	ErrKeyNotFound = errors.New("token store key not found")
	// ErrTokenStoreUnavailable is an exported constant or variable used by the authentication core.
	ErrTokenStoreUnavailable = errors.New("token store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication core.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// CooldownError reports how long the resend cooldown has left to run. It
// unwraps to [ErrResendCooldown] so callers can match it with errors.Is.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp resend cooldown active: %ds remaining", int(e.Remaining.Seconds()+0.999))
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *CooldownError) Unwrap() error {
	return ErrResendCooldown
}
