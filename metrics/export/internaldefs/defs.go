package internaldefs

import (
	authgate "github.com/kevinhra/authgate"
)

// CounterDef defines a public type used by authgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authgate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication core.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful credential logins."},
	{ID: authgate.MetricLoginRejected, Name: "authgate_login_rejected_total", Help: "Logins explicitly denied by the backend."},
	{ID: authgate.MetricLoginNetworkFailure, Name: "authgate_login_network_failure_total", Help: "Logins that failed in transport."},
	{ID: authgate.MetricStepUpRequired, Name: "authgate_step_up_required_total", Help: "Logins entering the one-time-code gate."},
	{ID: authgate.MetricStepUpSuccess, Name: "authgate_step_up_success_total", Help: "Successful one-time-code verifications."},
	{ID: authgate.MetricStepUpInvalid, Name: "authgate_step_up_invalid_total", Help: "Backend-confirmed wrong one-time codes."},
	{ID: authgate.MetricStepUpExceeded, Name: "authgate_step_up_attempts_exceeded_total", Help: "Step-up challenges locked after budget exhaustion."},
	{ID: authgate.MetricStepUpResend, Name: "authgate_step_up_resend_total", Help: "Successful one-time-code resends."},
	{ID: authgate.MetricStepUpResendBlocked, Name: "authgate_step_up_resend_blocked_total", Help: "Resends refused locally by the cooldown."},
	{ID: authgate.MetricQRValidated, Name: "authgate_qr_validated_total", Help: "Scanned codes resolved into approval requests."},
	{ID: authgate.MetricQRMalformed, Name: "authgate_qr_malformed_total", Help: "Scans rejected locally as structurally invalid."},
	{ID: authgate.MetricQRInvalid, Name: "authgate_qr_invalid_total", Help: "Scans or decisions the backend refused."},
	{ID: authgate.MetricQRApproved, Name: "authgate_qr_approved_total", Help: "Cross-device logins approved from this device."},
	{ID: authgate.MetricQRRejected, Name: "authgate_qr_rejected_total", Help: "Cross-device logins rejected from this device."},
	{ID: authgate.MetricQRExpired, Name: "authgate_qr_expired_total", Help: "Approval requests that timed out undecided."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Logout operations."},
	{ID: authgate.MetricStoreFailure, Name: "authgate_store_failure_total", Help: "Token store operations that failed."},
}

// HistogramDefs is an exported constant or variable used by the authentication core.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricBackendLatency, Name: "authgate_backend_latency_seconds", Help: "Identity backend round-trip latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication core.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication core.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
