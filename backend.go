package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Backend is the identity backend consumed by the engine. Implementations
// translate transport failures into [ErrBackendUnavailable] and explicit
// denials into the matching typed error, so flows never need to inspect HTTP
// status codes.
//
// No implementation retries internally; retry policy belongs to the caller
// because a retried login after a failed password must never be automatic.
//
//	Docs: docs/backend.md
type Backend interface {
	// Login exchanges credentials for an opaque provisional token.
	Login(ctx context.Context, email, password string) (string, error)
	// VerifyOTP upgrades the provisional token in place; the backend issues
	// no second token.
	VerifyOTP(ctx context.Context, token, code string) error
	// ResendOTP issues a fresh one-time code for the provisional token.
	ResendOTP(ctx context.Context, token string) error
	// ValidateQRSession resolves a scanned code into request metadata.
	ValidateQRSession(ctx context.Context, token, code string) (QRApprovalRequest, error)
	// DecideQRSession transmits the terminal approve/reject decision.
	DecideQRSession(ctx context.Context, token, qrToken string, approve bool) error
}

// HTTPBackend is the production [Backend] speaking JSON over HTTP to the
// identity service. Every request carries a UUID X-Request-ID so a device
// trace can be joined against backend logs.
type HTTPBackend struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPBackend describes the newhttpbackend operation and its observable behavior.
//
// NewHTTPBackend may return an error when input validation, dependency calls, or security checks fail.
func NewHTTPBackend(cfg BackendConfig, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &HTTPBackend{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    client,
	}
}

type apiEnvelope struct {
	Token     string          `json:"token,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Device    DeviceInfo      `json:"device_info,omitempty"`
	IssuedAt  json.RawMessage `json:"issued_at,omitempty"`
	ExpiresAt json.RawMessage `json:"expires_at,omitempty"`
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *HTTPBackend) Login(ctx context.Context, email, password string) (string, error) {
	env, status, err := b.post(ctx, "/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: %s", ErrLoginRejected, serverMessage(env))
	}
	// A 2xx without a token field is still a rejection: the provisional
	// session does not exist without one.
	if env.Token == "" {
		return "", fmt.Errorf("%w: %s", ErrLoginRejected, serverMessage(env))
	}
	return env.Token, nil
}

// VerifyOTP describes the verifyotp operation and its observable behavior.
//
// VerifyOTP may return an error when input validation, dependency calls, or security checks fail.
// VerifyOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *HTTPBackend) VerifyOTP(ctx context.Context, token, code string) error {
	env, status, err := b.post(ctx, "/verify-otp", token, map[string]string{
		"otp": code,
	})
	if err != nil {
		return err
	}
	switch {
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, serverMessage(env))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// A dead or revoked provisional token is not a wrong code; the
		// caller is routed back to a fresh login, not charged an attempt.
		return fmt.Errorf("%w: %s", ErrLoginRejected, serverMessage(env))
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: %s", ErrOTPInvalid, serverMessage(env))
	}
	return nil
}

// ResendOTP describes the resendotp operation and its observable behavior.
//
// ResendOTP may return an error when input validation, dependency calls, or security checks fail.
// ResendOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *HTTPBackend) ResendOTP(ctx context.Context, token string) error {
	env, status, err := b.post(ctx, "/resend-otp", token, nil)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, serverMessage(env))
	}
	if status < 200 || status >= 300 {
		// A denied resend means the provisional token itself is no longer
		// honored; the caller is routed back to a fresh login.
		return fmt.Errorf("%w: %s", ErrLoginRejected, serverMessage(env))
	}
	return nil
}

// ValidateQRSession describes the validateqrsession operation and its observable behavior.
//
// ValidateQRSession may return an error when input validation, dependency calls, or security checks fail.
// ValidateQRSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *HTTPBackend) ValidateQRSession(ctx context.Context, token, code string) (QRApprovalRequest, error) {
	env, status, err := b.post(ctx, "/qr-session/validate", token, map[string]string{
		"code": code,
	})
	if err != nil {
		return QRApprovalRequest{}, err
	}
	switch {
	case status >= 500:
		return QRApprovalRequest{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, serverMessage(env))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return QRApprovalRequest{}, fmt.Errorf("%w: %s", ErrNotAuthenticated, serverMessage(env))
	case status < 200 || status >= 300:
		return QRApprovalRequest{}, fmt.Errorf("%w: %s", ErrQRCodeInvalid, serverMessage(env))
	}
	return QRApprovalRequest{
		QRToken:   code,
		Device:    env.Device,
		IssuedAt:  parseAPITime(env.IssuedAt),
		ExpiresAt: parseAPITime(env.ExpiresAt),
	}, nil
}

// DecideQRSession describes the decideqrsession operation and its observable behavior.
//
// DecideQRSession may return an error when input validation, dependency calls, or security checks fail.
// DecideQRSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *HTTPBackend) DecideQRSession(ctx context.Context, token, qrToken string, approve bool) error {
	path := "/qr-session/reject"
	if approve {
		path = "/qr-session/approve"
	}
	env, status, err := b.post(ctx, path, token, map[string]string{
		"qr_token": qrToken,
	})
	if err != nil {
		return err
	}
	switch {
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, serverMessage(env))
	case status == http.StatusGone:
		return fmt.Errorf("%w: %s", ErrQRCodeExpired, serverMessage(env))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, serverMessage(env))
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrQRAlreadyDecided, serverMessage(env))
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: %s", ErrQRCodeInvalid, serverMessage(env))
	}
	return nil
}

func (b *HTTPBackend) post(ctx context.Context, path, bearer string, body map[string]string) (*apiEnvelope, int, error) {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, payload)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if device := deviceNameFromContext(ctx); device != "" {
		req.Header.Set("X-Device-Name", device)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	env := &apiEnvelope{}
	// Bodies are small; cap the read anyway so a misbehaving backend cannot
	// balloon memory on the device.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(raw) > 0 {
		// Non-JSON error bodies are tolerated; the status code still drives
		// the mapping and the body only feeds the message.
		_ = json.Unmarshal(raw, env)
	}
	return env, resp.StatusCode, nil
}

func serverMessage(env *apiEnvelope) string {
	if env == nil {
		return "no response body"
	}
	if env.Error != "" {
		return env.Error
	}
	if env.Message != "" {
		return env.Message
	}
	return "backend denied request"
}

// parseAPITime accepts the two timestamp encodings the identity service has
// shipped: RFC 3339 strings and unix seconds. Anything else maps to the zero
// time and the caller applies its default TTL.
func parseAPITime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if t, err := time.Parse(time.RFC3339, asString); err == nil {
			return t
		}
		return time.Time{}
	}
	var asUnix int64
	if err := json.Unmarshal(raw, &asUnix); err == nil && asUnix > 0 {
		return time.Unix(asUnix, 0)
	}
	return time.Time{}
}
