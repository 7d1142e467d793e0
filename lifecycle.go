package authgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The lifecycle controller owns every transition between session states. The
// three persisted keys encode the state machine:
//
//	token absent                      -> Unauthenticated
//	token present, otp_required set   -> PendingStepUp
//	token present, otp_required clear -> Authenticated
//
// Commits hold storeMu for their full multi-key write, and CurrentState holds
// it for its full multi-key read, so no reader observes a partial commit.

type sessionSnapshot struct {
	token       string
	otpRequired bool
	email       string
}

// CurrentState computes the session state from the token store. It is a pure
// projection: nothing is cached, so the first call after process start is the
// initial routing decision.
//
// CurrentState may return an error when input validation, dependency calls, or security checks fail.
//
//	Docs: docs/lifecycle.md
func (e *Engine) CurrentState(ctx context.Context) (SessionState, error) {
	if e == nil || e.tokens == nil {
		return StateUnauthenticated, ErrEngineNotReady
	}

	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	snap, err := e.readSnapshot(ctx)
	if err != nil {
		return StateUnauthenticated, err
	}
	return e.stateOf(ctx, snap), nil
}

func (e *Engine) stateOf(ctx context.Context, snap sessionSnapshot) SessionState {
	if snap.token == "" {
		return StateUnauthenticated
	}
	if e.config.Session.InspectTokenExpiry && tokenExpired(snap.token, e.now(), e.config.Session.ExpiryLeeway) {
		// A decodable JWT whose exp has passed cannot open a session; purge
		// it best-effort so the next read is cheap.
		e.clearAllKeys(ctx)
		return StateUnauthenticated
	}
	if snap.otpRequired {
		return StatePendingStepUp
	}
	return StateAuthenticated
}

// readSnapshot reads the three keys under storeMu. An absent key is a normal
// outcome; only an unavailable store is an error, so callers can distinguish
// "no session" from "storage broken".
func (e *Engine) readSnapshot(ctx context.Context) (sessionSnapshot, error) {
	var snap sessionSnapshot

	raw, err := e.tokens.Get(ctx, KeySessionToken)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return snap, nil
	case err != nil:
		e.metricInc(MetricStoreFailure)
		return snap, err
	}
	if jsonErr := json.Unmarshal([]byte(raw), &snap.token); jsonErr != nil {
		// Treat an undecodable record as absent rather than wedging login.
		log.Print("authgate: discarding undecodable session token record")
		e.clearAllKeys(ctx)
		return sessionSnapshot{}, nil
	}

	raw, err = e.tokens.Get(ctx, KeyOTPRequired)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		// absent flag means fully authenticated
	case err != nil:
		e.metricInc(MetricStoreFailure)
		return sessionSnapshot{}, err
	default:
		_ = json.Unmarshal([]byte(raw), &snap.otpRequired)
	}

	raw, err = e.tokens.Get(ctx, KeyLoginEmail)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		e.metricInc(MetricStoreFailure)
		return sessionSnapshot{}, err
	default:
		_ = json.Unmarshal([]byte(raw), &snap.email)
	}

	return snap, nil
}

// commitLogin persists the provisional session: token plus otp_required plus
// the login_email hint, all inside one storeMu hold. A partial write is rolled
// back to the empty store so no reader can see token-without-flag.
//
// generation is the login attempt that produced this session; a stale one
// means a newer Login started while this call's backend response was in
// flight, and the commit is refused so the newer state wins.
func (e *Engine) commitLogin(ctx context.Context, sess ProvisionalSession, email string, generation uint64) error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	e.stepMu.Lock()
	stale := e.loginGen != generation
	e.stepMu.Unlock()
	if stale {
		return ErrLoginSuperseded
	}

	if err := e.setJSON(ctx, KeySessionToken, sess.Token); err != nil {
		e.clearAllKeys(ctx)
		return err
	}
	if err := e.setJSON(ctx, KeyOTPRequired, true); err != nil {
		e.clearAllKeys(ctx)
		return err
	}
	if err := e.setJSON(ctx, KeyLoginEmail, email); err != nil {
		e.clearAllKeys(ctx)
		return err
	}
	return nil
}

// commitStepUp promotes the provisional token: the pending flags are cleared
// and the existing token stays, now fully authenticated.
func (e *Engine) commitStepUp(ctx context.Context) error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	if err := e.tokens.Delete(ctx, KeyOTPRequired); err != nil {
		e.metricInc(MetricStoreFailure)
		return err
	}
	if err := e.tokens.Delete(ctx, KeyLoginEmail); err != nil {
		e.metricInc(MetricStoreFailure)
		return err
	}
	return nil
}

// commitLogout clears all three keys regardless of prior state. It is
// idempotent and always attempts every delete; logout must win any race with
// a still-resolving commit.
func (e *Engine) commitLogout(ctx context.Context) error {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	var firstErr error
	for _, key := range []string{KeySessionToken, KeyOTPRequired, KeyLoginEmail} {
		if err := e.tokens.Delete(ctx, key); err != nil && firstErr == nil {
			e.metricInc(MetricStoreFailure)
			firstErr = err
		}
	}
	return firstErr
}

// Logout discards the session, pending or complete, and resets the in-memory
// challenge and approval tracking.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) Logout(ctx context.Context) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	e.stepMu.Lock()
	e.challenge = nil
	// Logout is last-writer-wins: bumping the login generation makes any
	// still-in-flight login resolve as superseded instead of resurrecting
	// a session after the logout.
	e.loginGen++
	e.stepMu.Unlock()

	err := e.commitLogout(ctx)

	e.qrMu.Lock()
	e.qrTracked = make(map[string]*qrRequestState)
	e.qrMu.Unlock()

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, err == nil, "", "", err, nil)
	return err
}

func (e *Engine) setJSON(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	if err := e.tokens.Set(ctx, key, string(encoded)); err != nil {
		e.metricInc(MetricStoreFailure)
		return err
	}
	return nil
}

// clearAllKeys is the best-effort rollback used inside commits; callers
// already hold storeMu. Failures here are logged, not returned: the caller's
// original error is the one that matters.
func (e *Engine) clearAllKeys(ctx context.Context) {
	for _, key := range []string{KeySessionToken, KeyOTPRequired, KeyLoginEmail} {
		if err := e.tokens.Delete(ctx, key); err != nil {
			log.Print("authgate: token store cleanup failed")
			return
		}
	}
}

// tokenExpired reports whether token is a decodable JWT whose exp claim has
// passed. The signature is deliberately not verified: this is startup
// hygiene, not validation, and the backend stays authoritative. Opaque
// non-JWT tokens always report false.
func tokenExpired(token string, now time.Time, leeway time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Add(leeway))
}
