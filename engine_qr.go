package authgate

import (
	"context"
	"errors"
	"time"
)

// qrRequestState tracks one cross-device approval request from the approving
// device's point of view:
//
//	Scanned -> Validating -> AwaitingDecision -> Approved | Rejected
//	                      -> Invalid
//	AwaitingDecision ------> Expired (lazy, wall-clock)
//
// Terminal phases are frozen: once a decision is recorded, the expiry check
// no longer applies to the request.
type qrRequestState struct {
	request   QRApprovalRequest
	phase     ScanPhase
	deciding  bool
	settledAt time.Time
}

// ValidateScan resolves a scanned code into an approval request awaiting a
// human decision. It requires this device to be fully authenticated.
//
// Scanning noise is cheap to reject: a structurally invalid code fails
// locally as [ErrQRCodeMalformed] and never reaches the network. Re-scanning
// an identical code while its validation is in flight is deduplicated, and
// re-scanning one that already reached AwaitingDecision returns the cached
// metadata without a second backend call.
//
//	Docs: docs/qr_approval.md
func (e *Engine) ValidateScan(ctx context.Context, code string) (*QRApprovalRequest, error) {
	if e == nil || e.backend == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	if !isQRCodeFormat(code, e.config.QR.MinCodeLength, e.config.QR.MaxCodeLength) {
		e.metricInc(MetricQRMalformed)
		e.emitAudit(ctx, auditEventQRValidateFailed, false, "", "", ErrQRCodeMalformed, func() map[string]string {
			return map[string]string{
				"reason": "malformed",
			}
		})
		return nil, ErrQRCodeMalformed
	}

	sessionToken, err := e.sessionToken(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	e.qrMu.Lock()
	e.sweepLocked(now)
	if state, ok := e.qrTracked[code]; ok {
		switch state.phase {
		case ScanValidating:
			e.qrMu.Unlock()
			return nil, ErrQRValidationInFlight
		case ScanAwaitingDecision:
			if now.Before(state.request.ExpiresAt) {
				req := state.request
				e.qrMu.Unlock()
				return &req, nil
			}
			state.phase = ScanExpired
			state.settledAt = now
			e.qrMu.Unlock()
			e.metricInc(MetricQRExpired)
			e.emitAudit(ctx, auditEventQRExpired, false, "", code, ErrQRCodeExpired, nil)
			return nil, ErrQRCodeExpired
		case ScanApproved, ScanRejected:
			e.qrMu.Unlock()
			return nil, ErrQRAlreadyDecided
		case ScanExpired:
			e.qrMu.Unlock()
			return nil, ErrQRCodeExpired
		case ScanInvalid:
			e.qrMu.Unlock()
			return nil, ErrQRCodeInvalid
		}
	}
	e.qrTracked[code] = &qrRequestState{phase: ScanValidating}
	e.qrMu.Unlock()

	start := e.now()
	req, err := e.backend.ValidateQRSession(ctx, sessionToken, code)
	e.observeBackend(start)

	e.qrMu.Lock()
	state := e.qrTracked[code]
	if state == nil {
		// Logout swept the table while the call was in flight; the late
		// response must not resurrect the request.
		e.qrMu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrQRCodeInvalid):
			state.phase = ScanInvalid
			state.settledAt = e.now()
		default:
			// Transport and auth failures are retryable; forget the entry so
			// a re-scan starts clean.
			delete(e.qrTracked, code)
		}
		e.qrMu.Unlock()
		e.metricInc(MetricQRInvalid)
		e.emitAudit(ctx, auditEventQRValidateFailed, false, "", code, err, nil)
		return nil, err
	}

	req.QRToken = code
	if req.IssuedAt.IsZero() {
		req.IssuedAt = e.now()
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = req.IssuedAt.Add(e.config.QR.DefaultTTL)
	}
	state.phase = ScanAwaitingDecision
	state.request = req
	e.qrMu.Unlock()

	e.metricInc(MetricQRValidated)
	e.emitAudit(ctx, auditEventQRValidated, true, "", code, nil, func() map[string]string {
		return map[string]string{
			"device": req.Device.Name,
		}
	})
	out := req
	return &out, nil
}

// Decide transmits the terminal approve/reject outcome for a validated
// request. At most one decision is accepted per request from this device:
// the request is locked while the call is in flight and frozen once settled,
// and a decide after expiry fails with [ErrQRCodeExpired] without reaching
// the network. The backend remains the single-use authority; its rejection of
// a duplicate always wins over the local view.
//
// Decide may return an error when input validation, dependency calls, or security checks fail.
//
//	Docs: docs/qr_approval.md
func (e *Engine) Decide(ctx context.Context, qrToken string, approve bool) (Decision, error) {
	if e == nil || e.backend == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	sessionToken, err := e.sessionToken(ctx)
	if err != nil {
		return 0, err
	}

	now := e.now()
	e.qrMu.Lock()
	state, ok := e.qrTracked[qrToken]
	if !ok {
		e.qrMu.Unlock()
		return 0, ErrQRUnknownRequest
	}
	switch {
	case state.phase == ScanApproved || state.phase == ScanRejected || state.deciding:
		e.qrMu.Unlock()
		return 0, ErrQRAlreadyDecided
	case state.phase == ScanExpired:
		e.qrMu.Unlock()
		return 0, ErrQRCodeExpired
	case state.phase != ScanAwaitingDecision:
		e.qrMu.Unlock()
		return 0, ErrQRCodeInvalid
	case !now.Before(state.request.ExpiresAt):
		// Lazy timeout: no background scheduler, the deadline is checked on
		// the way in and the payload never reaches the backend.
		state.phase = ScanExpired
		state.settledAt = now
		e.qrMu.Unlock()
		e.metricInc(MetricQRExpired)
		e.emitAudit(ctx, auditEventQRExpired, false, "", qrToken, ErrQRCodeExpired, nil)
		return 0, ErrQRCodeExpired
	}
	state.deciding = true
	e.qrMu.Unlock()

	start := e.now()
	err = e.backend.DecideQRSession(ctx, sessionToken, qrToken, approve)
	e.observeBackend(start)

	e.qrMu.Lock()
	state.deciding = false
	if err != nil {
		switch {
		case errors.Is(err, ErrQRCodeExpired):
			state.phase = ScanExpired
			state.settledAt = e.now()
			e.qrMu.Unlock()
			e.metricInc(MetricQRExpired)
			e.emitAudit(ctx, auditEventQRExpired, false, "", qrToken, err, nil)
			return 0, err
		case errors.Is(err, ErrQRAlreadyDecided), errors.Is(err, ErrQRCodeInvalid):
			state.phase = ScanInvalid
			state.settledAt = e.now()
			e.qrMu.Unlock()
			e.metricInc(MetricQRInvalid)
			e.emitAudit(ctx, auditEventQRDecideFailed, false, "", qrToken, err, nil)
			return 0, err
		default:
			// Transport failure: the decision was not recorded, leave the
			// request open for a manual retry.
			e.qrMu.Unlock()
			e.emitAudit(ctx, auditEventQRDecideFailed, false, "", qrToken, err, nil)
			return 0, err
		}
	}

	decision := DecisionRejected
	eventType := auditEventQRRejected
	metric := MetricQRRejected
	if approve {
		decision = DecisionApproved
		eventType = auditEventQRApproved
		metric = MetricQRApproved
	}
	if approve {
		state.phase = ScanApproved
	} else {
		state.phase = ScanRejected
	}
	state.settledAt = e.now()
	e.qrMu.Unlock()

	e.metricInc(metric)
	e.emitAudit(ctx, eventType, true, "", qrToken, nil, nil)
	return decision, nil
}

// ScanStatus reports the current phase of a tracked approval request,
// applying the lazy expiry check. Untracked tokens report [ScanUnknown].
func (e *Engine) ScanStatus(qrToken string) ScanPhase {
	if e == nil {
		return ScanUnknown
	}

	e.qrMu.Lock()
	defer e.qrMu.Unlock()

	state, ok := e.qrTracked[qrToken]
	if !ok {
		return ScanUnknown
	}
	if state.phase == ScanAwaitingDecision && !state.deciding && !e.now().Before(state.request.ExpiresAt) {
		state.phase = ScanExpired
		state.settledAt = e.now()
	}
	return state.phase
}

// Sweep drops settled requests older than the retention window and expires
// overdue pending ones. The engine sweeps opportunistically on every scan;
// embedders with long-lived approval sheets may call it directly.
func (e *Engine) Sweep() {
	if e == nil {
		return
	}
	e.qrMu.Lock()
	e.sweepLocked(e.now())
	e.qrMu.Unlock()
}

func (e *Engine) sweepLocked(now time.Time) {
	for code, state := range e.qrTracked {
		if state.phase == ScanAwaitingDecision && !state.deciding && !now.Before(state.request.ExpiresAt) {
			state.phase = ScanExpired
			state.settledAt = now
		}
		switch state.phase {
		case ScanApproved, ScanRejected, ScanInvalid, ScanExpired:
			if now.Sub(state.settledAt) > e.config.QR.RetainDecided {
				delete(e.qrTracked, code)
			}
		}
	}
}

// sessionToken returns the fully authenticated session token, refusing
// provisional or absent sessions.
func (e *Engine) sessionToken(ctx context.Context) (string, error) {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	snap, err := e.readSnapshot(ctx)
	if err != nil {
		return "", err
	}
	if e.stateOf(ctx, snap) != StateAuthenticated {
		return "", ErrNotAuthenticated
	}
	return snap.token, nil
}

// isQRCodeFormat applies the structural pre-filter: token alphabet
// (alphanumeric plus the base64url separators) and bounded length. Anything
// else is scanner noise and must not be sent to the backend.
func isQRCodeFormat(code string, minLen, maxLen int) bool {
	if len(code) < minLen || len(code) > maxLen {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
