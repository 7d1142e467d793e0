package authgate

import "time"

// SessionState is the derived authentication state of this device. It is
// never stored directly: [Engine.CurrentState] computes it from the three
// persisted token store keys.
//
//	Docs: docs/lifecycle.md
type SessionState uint8

const (
	// StateUnauthenticated is an exported constant or variable used by the authentication core.
	StateUnauthenticated SessionState = iota
	// StatePendingStepUp is an exported constant or variable used by the authentication core.
	StatePendingStepUp
	// StateAuthenticated is an exported constant or variable used by the authentication core.
	StateAuthenticated
)

// String describes the string operation and its observable behavior.
func (s SessionState) String() string {
	switch s {
	case StatePendingStepUp:
		return "pending_step_up"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ProvisionalSession is the artifact of a successful credential check. The
// token is opaque and not yet authorized for protected calls; step-up
// verification upgrades it in place, the backend never issues a second token.
type ProvisionalSession struct {
	Token     string
	CreatedAt time.Time
}

// LoginResult is returned by [Engine.Login]. StepUpRequired is always true in
// this system: every login passes through the one-time-code gate before the
// session is usable.
type LoginResult struct {
	StepUpRequired bool
	Email          string
}

// StepUpStatus is a read-only snapshot of the pending one-time-code
// challenge, returned by [Engine.StepUpStatus] so the presentation layer can
// render the attempt budget and cooldown countdown without owning timers.
type StepUpStatus struct {
	Email             string
	AttemptsRemaining int
	ResendAvailableIn time.Duration
}

// DeviceInfo is the opaque metadata describing the device requesting a
// cross-device login. Fields are surfaced for human confirmation and never
// parsed.
type DeviceInfo struct {
	Name     string `json:"name,omitempty"`
	Browser  string `json:"browser,omitempty"`
	Location string `json:"location,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// QRApprovalRequest is a validated cross-device login challenge awaiting a
// human decision on this (already authenticated) device.
//
//	Docs: docs/qr_approval.md
type QRApprovalRequest struct {
	QRToken   string
	Device    DeviceInfo
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Decision is the terminal outcome recorded for a cross-device approval
// request.
type Decision uint8

const (
	// DecisionApproved is an exported constant or variable used by the authentication core.
	DecisionApproved Decision = iota + 1
	// DecisionRejected is an exported constant or variable used by the authentication core.
	DecisionRejected
)

// String describes the string operation and its observable behavior.
func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "undecided"
	}
}

// ScanPhase is the per-request view of the cross-device approval state
// machine as tracked by the approving device.
type ScanPhase uint8

const (
	// ScanUnknown is an exported constant or variable used by the authentication core.
	ScanUnknown ScanPhase = iota
	// ScanValidating is an exported constant or variable used by the authentication core.
	ScanValidating
	// ScanAwaitingDecision is an exported constant or variable used by the authentication core.
	ScanAwaitingDecision
	// ScanApproved is an exported constant or variable used by the authentication core.
	ScanApproved
	// ScanRejected is an exported constant or variable used by the authentication core.
	ScanRejected
	// ScanInvalid is an exported constant or variable used by the authentication core.
	ScanInvalid
	// ScanExpired is an exported constant or variable used by the authentication core.
	ScanExpired
)

// String describes the string operation and its observable behavior.
func (p ScanPhase) String() string {
	switch p {
	case ScanValidating:
		return "validating"
	case ScanAwaitingDecision:
		return "awaiting_decision"
	case ScanApproved:
		return "approved"
	case ScanRejected:
		return "rejected"
	case ScanInvalid:
		return "invalid"
	case ScanExpired:
		return "expired"
	default:
		return "unknown"
	}
}
