package authgate

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.StepUp.CodeDigits != 6 {
		t.Fatalf("CodeDigits = %d, want 6", cfg.StepUp.CodeDigits)
	}
	if cfg.StepUp.MaxAttempts != 5 {
		t.Fatalf("MaxAttempts = %d, want 5", cfg.StepUp.MaxAttempts)
	}
	if cfg.StepUp.ResendCooldown != 60*time.Second {
		t.Fatalf("ResendCooldown = %v, want 60s", cfg.StepUp.ResendCooldown)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "/v1" },
			wantSub: "BaseURL",
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *Config) { c.Backend.RequestTimeout = 0 },
			wantSub: "RequestTimeout",
		},
		{
			name:    "too few code digits",
			mutate:  func(c *Config) { c.StepUp.CodeDigits = 3 },
			wantSub: "CodeDigits",
		},
		{
			name:    "zero attempt budget",
			mutate:  func(c *Config) { c.StepUp.MaxAttempts = 0 },
			wantSub: "MaxAttempts",
		},
		{
			name:    "zero cooldown",
			mutate:  func(c *Config) { c.StepUp.ResendCooldown = 0 },
			wantSub: "ResendCooldown",
		},
		{
			name:    "qr bounds inverted",
			mutate:  func(c *Config) { c.QR.MaxCodeLength = c.QR.MinCodeLength - 1 },
			wantSub: "MaxCodeLength",
		},
		{
			name:    "key prefix with whitespace",
			mutate:  func(c *Config) { c.Session.KeyPrefix = "a g" },
			wantSub: "KeyPrefix",
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantSub: "BufferSize",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not name %q", err, tc.wantSub)
			}
		})
	}
}

func TestBuilderRequiresTokenStore(t *testing.T) {
	_, err := New().
		WithConfig(DefaultConfig()).
		WithBackend(&fakeBackend{}).
		Build()
	if err == nil {
		t.Fatal("Build succeeded without a token store")
	}
}

func TestBuilderRequiresBackendOrBaseURL(t *testing.T) {
	_, err := New().
		WithConfig(DefaultConfig()).
		WithTokenStore(NewMemoryTokenStore()).
		Build()
	if err == nil {
		t.Fatal("Build succeeded without a backend")
	}

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://id.example.com"
	engine, err := New().
		WithConfig(cfg).
		WithTokenStore(NewMemoryTokenStore()).
		Build()
	if err != nil {
		t.Fatalf("Build with BaseURL failed: %v", err)
	}
	t.Cleanup(engine.Close)
	if _, ok := engine.backend.(*HTTPBackend); !ok {
		t.Fatalf("default backend is %T, want *HTTPBackend", engine.backend)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().
		WithConfig(DefaultConfig()).
		WithBackend(&fakeBackend{}).
		WithTokenStore(NewMemoryTokenStore())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build on the same builder succeeded")
	}
}
