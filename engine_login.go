package authgate

import (
	"context"
	"errors"
	"strings"
)

// Login validates the credentials against the identity backend and, on
// success, persists the provisional session and opens the mandatory step-up
// gate. The credentials are transient: they live only for the duration of
// this call and are never persisted.
//
// Login never retries. [ErrBackendUnavailable] means the caller may offer
// "retry"; [ErrLoginRejected] means the credentials must be fixed first.
//
// A new Login supersedes a prior in-flight one: the late response of the
// older call is discarded with [ErrLoginSuperseded] instead of committing
// over the newer session.
//
//	Docs: docs/login.md
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || e.backend == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		// Local validation; no network side effect.
		e.emitAudit(ctx, auditEventLoginFailure, false, email, "", ErrCredentialsMissing, func() map[string]string {
			return map[string]string{
				"reason": "empty_credentials",
			}
		})
		return nil, ErrCredentialsMissing
	}

	e.stepMu.Lock()
	e.loginGen++
	generation := e.loginGen
	e.stepMu.Unlock()

	start := e.now()
	token, err := e.backend.Login(ctx, email, password)
	e.observeBackend(start)
	password = ""
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			e.metricInc(MetricLoginNetworkFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, email, "", err, func() map[string]string {
				return map[string]string{
					"reason": "transport",
				}
			})
			return nil, err
		}
		e.metricInc(MetricLoginRejected)
		e.emitAudit(ctx, auditEventLoginRejected, false, email, "", err, nil)
		return nil, err
	}

	sess := ProvisionalSession{
		Token:     token,
		CreatedAt: e.now(),
	}

	// A new provisional session overwrites any prior unconsumed one; exactly
	// one may exist per device. The commit re-checks the generation under
	// storeMu so a superseded login cannot write over the newer session.
	if err := e.commitLogin(ctx, sess, email, generation); err != nil {
		if errors.Is(err, ErrLoginSuperseded) {
			e.emitAudit(ctx, auditEventLoginFailure, false, email, "", err, func() map[string]string {
				return map[string]string{
					"reason": "superseded",
				}
			})
			return nil, err
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, email, "", err, func() map[string]string {
			return map[string]string{
				"reason": "store_commit",
			}
		})
		return nil, err
	}

	e.installChallenge(sess.Token, email, generation)

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricStepUpRequired)
	e.emitAudit(ctx, auditEventLoginSuccess, true, email, "", nil, nil)
	e.emitAudit(ctx, auditEventStepUpRequired, true, email, "", nil, nil)

	return &LoginResult{
		StepUpRequired: true,
		Email:          email,
	}, nil
}
