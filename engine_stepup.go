package authgate

import (
	"context"
	"errors"
	"time"
)

// otpChallenge is the in-memory side of the step-up gate. The durable side is
// the otp_required flag in the token store; the challenge only tracks what
// must not survive a restart: the attempt budget and the resend deadline.
//
// generation increments on every resend so a submit that raced a resend can
// detect that its code belongs to a superseded challenge.
type otpChallenge struct {
	token             string
	email             string
	attemptsUsed      int
	locked            bool
	resendAvailableAt time.Time
	generation        uint64
}

// installChallenge is a no-op when loginGen has moved past the attempt that
// produced the token; the newer login owns the challenge slot.
func (e *Engine) installChallenge(token, email string, loginGen uint64) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	if e.loginGen != loginGen {
		return
	}

	generation := uint64(1)
	if e.challenge != nil {
		generation = e.challenge.generation + 1
	}
	e.challenge = &otpChallenge{
		token: token,
		email: email,
		// The login (or resume) response itself carries the first code, so
		// the cooldown window opens now.
		resendAvailableAt: e.now().Add(e.config.StepUp.ResendCooldown),
		generation:        generation,
	}
}

// ResumeStepUp rehydrates the challenge after a process restart: when the
// persisted state is PendingStepUp, the recorded login_email drives the OTP
// screen without forcing a fresh password entry.
//
// The resend deadline did not survive the restart, so a conservative full
// cooldown window is started; restarting the process can therefore never
// shorten a cooldown.
//
// ResumeStepUp may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) ResumeStepUp(ctx context.Context) (*StepUpStatus, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	e.storeMu.Lock()
	snap, err := e.readSnapshot(ctx)
	if err != nil {
		e.storeMu.Unlock()
		return nil, err
	}
	state := e.stateOf(ctx, snap)
	e.storeMu.Unlock()

	if state != StatePendingStepUp {
		return nil, ErrNotPendingStepUp
	}

	e.stepMu.Lock()
	if e.challenge == nil || e.challenge.token != snap.token {
		loginGen := e.loginGen
		e.stepMu.Unlock()
		e.installChallenge(snap.token, snap.email, loginGen)
		e.stepMu.Lock()
	}
	status := e.statusLocked()
	e.stepMu.Unlock()

	return status, nil
}

// SubmitOTP submits the one-time code for the pending challenge.
//
// A malformed code fails locally without a network round-trip and without
// consuming budget. A backend-confirmed wrong code consumes one attempt;
// exhausting the budget locks the challenge, and the next submit is rejected
// locally with [ErrOTPAttemptsExceeded] after forcing a full logout so no
// half-authenticated state can persist.
//
//	Docs: docs/step_up.md
func (e *Engine) SubmitOTP(ctx context.Context, code string) error {
	if e == nil || e.backend == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	e.stepMu.Lock()
	ch := e.challenge
	if ch == nil {
		e.stepMu.Unlock()
		return ErrNotPendingStepUp
	}
	if ch.locked {
		e.challenge = nil
		e.stepMu.Unlock()
		// Fatal: the budget was exhausted on a prior attempt. Reset
		// everything before reporting, logout errors included.
		if err := e.commitLogout(ctx); err != nil {
			return err
		}
		e.metricInc(MetricStepUpExceeded)
		e.emitAudit(ctx, auditEventStepUpExceeded, false, ch.email, "", ErrOTPAttemptsExceeded, nil)
		return ErrOTPAttemptsExceeded
	}
	if !isOTPFormat(code, e.config.StepUp.CodeDigits) {
		e.stepMu.Unlock()
		return ErrOTPCodeMalformed
	}
	token := ch.token
	email := ch.email
	generation := ch.generation
	e.stepMu.Unlock()

	start := e.now()
	err := e.backend.VerifyOTP(ctx, token, code)
	e.observeBackend(start)

	switch {
	case err == nil:
		e.stepMu.Lock()
		stale := e.challenge == nil || e.challenge.generation != generation
		if !stale {
			e.challenge = nil
		}
		e.stepMu.Unlock()
		if stale {
			// A resend superseded this code while the call was in flight;
			// its late success must not override the newer challenge.
			return ErrOTPInvalid
		}

		if commitErr := e.commitStepUp(ctx); commitErr != nil {
			e.emitAudit(ctx, auditEventStepUpFailure, false, email, "", commitErr, func() map[string]string {
				return map[string]string{
					"reason": "store_commit",
				}
			})
			return commitErr
		}
		e.metricInc(MetricStepUpSuccess)
		e.emitAudit(ctx, auditEventStepUpSuccess, true, email, "", nil, nil)
		return nil

	case errors.Is(err, ErrBackendUnavailable):
		// Recoverable by manual retry; the budget is only spent on a
		// backend-confirmed wrong code.
		e.emitAudit(ctx, auditEventStepUpFailure, false, email, "", err, func() map[string]string {
			return map[string]string{
				"reason": "transport",
			}
		})
		return err

	case errors.Is(err, ErrOTPInvalid):
		e.stepMu.Lock()
		if e.challenge != nil && e.challenge.generation == generation {
			e.challenge.attemptsUsed++
			if e.challenge.attemptsUsed >= e.config.StepUp.MaxAttempts {
				e.challenge.locked = true
			}
		}
		e.stepMu.Unlock()
		e.metricInc(MetricStepUpInvalid)
		e.emitAudit(ctx, auditEventStepUpFailure, false, email, "", err, nil)
		return err

	default:
		e.emitAudit(ctx, auditEventStepUpFailure, false, email, "", err, nil)
		return err
	}
}

// ResendOTP asks the backend for a fresh code. Inside the cooldown window it
// fails locally with a [CooldownError] and performs no network call; the
// remaining time is recomputed from the wall clock on every call, so a
// suspended and resumed process cannot shorten the window.
//
// A successful resend supersedes the previous code: a stale code submitted
// afterwards is refused even if its verify call was already in flight.
func (e *Engine) ResendOTP(ctx context.Context) error {
	if e == nil || e.backend == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	e.stepMu.Lock()
	ch := e.challenge
	if ch == nil {
		e.stepMu.Unlock()
		return ErrNotPendingStepUp
	}
	if ch.locked {
		e.challenge = nil
		e.stepMu.Unlock()
		if err := e.commitLogout(ctx); err != nil {
			return err
		}
		e.metricInc(MetricStepUpExceeded)
		e.emitAudit(ctx, auditEventStepUpExceeded, false, ch.email, "", ErrOTPAttemptsExceeded, nil)
		return ErrOTPAttemptsExceeded
	}
	if remaining := ch.resendAvailableAt.Sub(e.now()); remaining > 0 {
		e.stepMu.Unlock()
		e.metricInc(MetricStepUpResendBlocked)
		e.emitAudit(ctx, auditEventStepUpResendBlock, false, ch.email, "", ErrResendCooldown, nil)
		return &CooldownError{Remaining: remaining}
	}
	token := ch.token
	email := ch.email
	generation := ch.generation
	e.stepMu.Unlock()

	start := e.now()
	err := e.backend.ResendOTP(ctx, token)
	e.observeBackend(start)
	if err != nil {
		e.emitAudit(ctx, auditEventStepUpFailure, false, email, "", err, func() map[string]string {
			return map[string]string{
				"reason": "resend",
			}
		})
		return err
	}

	e.stepMu.Lock()
	if e.challenge != nil && e.challenge.generation == generation {
		e.challenge.generation++
		e.challenge.resendAvailableAt = e.now().Add(e.config.StepUp.ResendCooldown)
	}
	e.stepMu.Unlock()

	e.metricInc(MetricStepUpResend)
	e.emitAudit(ctx, auditEventStepUpResend, true, email, "", nil, nil)
	return nil
}

// StepUpStatus reports the pending challenge's attempt budget and cooldown
// remainder so the presentation layer can render countdowns without owning
// any timer state.
//
// StepUpStatus may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) StepUpStatus() (*StepUpStatus, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	e.stepMu.Lock()
	defer e.stepMu.Unlock()

	if e.challenge == nil {
		return nil, ErrNotPendingStepUp
	}
	return e.statusLocked(), nil
}

func (e *Engine) statusLocked() *StepUpStatus {
	remaining := e.challenge.resendAvailableAt.Sub(e.now())
	if remaining < 0 {
		remaining = 0
	}
	attempts := e.config.StepUp.MaxAttempts - e.challenge.attemptsUsed
	if attempts < 0 || e.challenge.locked {
		attempts = 0
	}
	return &StepUpStatus{
		Email:             e.challenge.email,
		AttemptsRemaining: attempts,
		ResendAvailableIn: remaining,
	}
}

func isOTPFormat(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
