package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess      = "login_success"
	auditEventLoginRejected     = "login_rejected"
	auditEventLoginFailure      = "login_failure"
	auditEventStepUpRequired    = "step_up_required"
	auditEventStepUpSuccess     = "step_up_success"
	auditEventStepUpFailure     = "step_up_failure"
	auditEventStepUpExceeded    = "step_up_attempts_exceeded"
	auditEventStepUpResend      = "step_up_resend"
	auditEventStepUpResendBlock = "step_up_resend_blocked"
	auditEventQRValidated       = "qr_validated"
	auditEventQRValidateFailed  = "qr_validate_failed"
	auditEventQRApproved        = "qr_approved"
	auditEventQRRejected        = "qr_rejected"
	auditEventQRExpired         = "qr_expired"
	auditEventQRDecideFailed    = "qr_decide_failed"
	auditEventLogout            = "logout"
)

// AuditErrorCode defines a public type used by authgate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrCredentialsMissing AuditErrorCode = "credentials_missing"
	auditErrLoginRejected      AuditErrorCode = "login_rejected"
	auditErrLoginSuperseded    AuditErrorCode = "login_superseded"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrNotPendingStepUp   AuditErrorCode = "not_pending_step_up"
	auditErrOTPMalformed       AuditErrorCode = "otp_malformed"
	auditErrOTPInvalid         AuditErrorCode = "otp_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrCooldownActive     AuditErrorCode = "cooldown_active"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrQRMalformed        AuditErrorCode = "qr_malformed"
	auditErrQRInvalid          AuditErrorCode = "qr_invalid"
	auditErrQRExpired          AuditErrorCode = "qr_expired"
	auditErrQRDecided          AuditErrorCode = "qr_already_decided"
	auditErrStoreUnavailable   AuditErrorCode = "store_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialsMissing):
		return auditErrCredentialsMissing
	case errors.Is(err, ErrLoginRejected):
		return auditErrLoginRejected
	case errors.Is(err, ErrLoginSuperseded):
		return auditErrLoginSuperseded
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrNotPendingStepUp):
		return auditErrNotPendingStepUp
	case errors.Is(err, ErrOTPCodeMalformed):
		return auditErrOTPMalformed
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrResendCooldown):
		return auditErrCooldownActive
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrQRCodeMalformed):
		return auditErrQRMalformed
	case errors.Is(err, ErrQRCodeExpired):
		return auditErrQRExpired
	case errors.Is(err, ErrQRAlreadyDecided):
		return auditErrQRDecided
	case errors.Is(err, ErrQRCodeInvalid), errors.Is(err, ErrQRUnknownRequest), errors.Is(err, ErrQRValidationInFlight):
		return auditErrQRInvalid
	case errors.Is(err, ErrTokenStoreUnavailable), errors.Is(err, ErrKeyNotFound):
		return auditErrStoreUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	email string,
	qrToken string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Email:     email,
		QRToken:   qrToken,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
