package authgate

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Backend BackendConfig
	StepUp  StepUpConfig
	QR      QRConfig
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig defines a public type used by authgate APIs.
//
// BackendConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	UserAgent      string
}

/*
====================================
STEP-UP CONFIG
====================================
*/

// StepUpConfig defines a public type used by authgate APIs.
//
// StepUpConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StepUpConfig struct {
	CodeDigits     int
	MaxAttempts    int
	ResendCooldown time.Duration
}

/*
====================================
QR APPROVAL CONFIG
====================================
*/

// QRConfig defines a public type used by authgate APIs.
//
// QRConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type QRConfig struct {
	MinCodeLength int
	MaxCodeLength int

	// DefaultTTL bounds a validated request when the backend response carries
	// no usable expires_at.
	DefaultTTL time.Duration

	// RetainDecided controls how long terminal requests stay queryable via
	// ScanStatus before Sweep reclaims them.
	RetainDecided time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authgate APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	KeyPrefix string

	// InspectTokenExpiry enables the startup hygiene check: when the backend
	// issues JWT-shaped session tokens, a persisted token whose exp claim has
	// passed is treated as no session. The signature is never verified here;
	// the backend remains the authority on token validity.
	InspectTokenExpiry bool
	ExpiryLeeway       time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: 6-digit codes, a budget
// of 5 attempts, a 60s resend cooldown, and a 2m fallback TTL for approval
// requests.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			RequestTimeout: 15 * time.Second,
			UserAgent:      "authgate",
		},
		StepUp: StepUpConfig{
			CodeDigits:     6,
			MaxAttempts:    5,
			ResendCooldown: 60 * time.Second,
		},
		QR: QRConfig{
			MinCodeLength: 16,
			MaxCodeLength: 128,
			DefaultTTL:    2 * time.Minute,
			RetainDecided: 5 * time.Minute,
		},
		Session: SessionConfig{
			KeyPrefix:    "ag",
			ExpiryLeeway: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All fields are value types; a shallow copy is a deep copy.
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Backend
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("Backend BaseURL must be an absolute URL")
		}
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("Backend RequestTimeout must be > 0")
	}

	// Step-up
	if c.StepUp.CodeDigits < 4 || c.StepUp.CodeDigits > 10 {
		return errors.New("StepUp CodeDigits must be between 4 and 10")
	}
	if c.StepUp.MaxAttempts < 1 {
		return errors.New("StepUp MaxAttempts must be >= 1")
	}
	if c.StepUp.ResendCooldown <= 0 {
		return errors.New("StepUp ResendCooldown must be > 0")
	}

	// QR approval
	if c.QR.MinCodeLength < 8 {
		return errors.New("QR MinCodeLength must be >= 8")
	}
	if c.QR.MaxCodeLength < c.QR.MinCodeLength {
		return errors.New("QR MaxCodeLength must be >= MinCodeLength")
	}
	if c.QR.DefaultTTL <= 0 {
		return errors.New("QR DefaultTTL must be > 0")
	}
	if c.QR.RetainDecided < 0 {
		return errors.New("QR RetainDecided must be >= 0")
	}

	// Session
	if strings.ContainsAny(c.Session.KeyPrefix, " \t\n") {
		return errors.New("Session KeyPrefix must not contain whitespace")
	}
	if c.Session.ExpiryLeeway < 0 {
		return errors.New("Session ExpiryLeeway must be >= 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
