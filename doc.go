// Package authgate implements the device-side authentication core used by the
// application: credential login against the identity backend, a mandatory
// one-time-code step-up gate, a persisted session-token lifecycle, and the
// cross-device scan-to-login approval protocol.
//
// The package is the public surface. It exposes [Engine], [Builder], [Config],
// the [TokenStore] contract with its Redis, bbolt, and in-memory
// implementations, and value types (LoginResult, QRApprovalRequest,
// MetricsSnapshot, etc.). Metric exporters for Prometheus and OpenTelemetry
// live under metrics/export and depend on this package, never the reverse.
//
// # Architecture boundaries
//
// Engine methods are the only place I/O happens; construction via
// [Builder.Build] is allocation-only. The presentation layer is an external
// collaborator: it calls Engine operations, renders the typed errors, and owns
// no session state of its own. The three persisted keys (token, otp_required,
// login_email) are the single durable representation of the session state
// machine, and [Engine.CurrentState] is a pure projection over them.
//
// # What this package must NOT do
//
//   - Render anything, or bake retry loops around backend calls (double OTP
//     submission is worse than surfacing a retryable error).
//   - Trust an in-memory tick count for cooldowns or expiries; deadlines are
//     wall-clock anchored and recomputed on demand.
//   - Treat a client-side single-use check as authoritative for QR decisions;
//     the backend remains the authority and its rejection always wins.
package authgate
