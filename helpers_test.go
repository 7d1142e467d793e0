package authgate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// testClock replaces Engine.now so cooldown and expiry tests control the
// wall clock instead of sleeping.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeBackend is a scripted [Backend]. Tests mutate the response fields
// between calls; counters record how often each endpoint was reached so
// "fails locally, no network call" assertions are direct.
type fakeBackend struct {
	mu sync.Mutex

	loginToken  string
	loginErr    error
	verifyErr   error
	resendErr   error
	validateReq QRApprovalRequest
	validateErr error
	decideErr   error

	// loginGate and validateGate, when set, block the matching call until
	// released so in-flight supersede behavior can be exercised.
	loginGate    chan struct{}
	validateGate chan struct{}

	loginCalls    int
	verifyCalls   int
	resendCalls   int
	validateCalls int
	decideCalls   int
}

func (f *fakeBackend) Login(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	f.loginCalls++
	gate := f.loginGate
	token, err := f.loginToken, f.loginErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (f *fakeBackend) VerifyOTP(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verifyErr
}

func (f *fakeBackend) ResendOTP(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendCalls++
	return f.resendErr
}

func (f *fakeBackend) ValidateQRSession(_ context.Context, _, _ string) (QRApprovalRequest, error) {
	f.mu.Lock()
	gate := f.validateGate
	f.validateCalls++
	req, err := f.validateReq, f.validateErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return req, err
}

func (f *fakeBackend) DecideQRSession(_ context.Context, _, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decideCalls++
	return f.decideErr
}

func (f *fakeBackend) calls() (login, verify, resend, validate, decide int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.verifyCalls, f.resendCalls, f.validateCalls, f.decideCalls
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeBackend, *MemoryTokenStore, *testClock) {
	t.Helper()

	backend := &fakeBackend{loginToken: "prov-token-1"}
	store := NewMemoryTokenStore()

	engine, err := New().
		WithConfig(cfg).
		WithBackend(backend).
		WithTokenStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	clock := newTestClock()
	engine.now = clock.Now

	return engine, backend, store, clock
}

func testConfig() Config {
	return defaultConfig()
}

// loginPending drives the engine into PendingStepUp.
func loginPending(t *testing.T, engine *Engine) {
	t.Helper()

	result, err := engine.Login(context.Background(), "a@b.com", "pw1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.StepUpRequired {
		t.Fatal("expected step-up to be required after login")
	}
}

// loginAuthenticated drives the engine all the way to Authenticated.
func loginAuthenticated(t *testing.T, engine *Engine, backend *fakeBackend) {
	t.Helper()

	loginPending(t, engine)
	backend.mu.Lock()
	backend.verifyErr = nil
	backend.mu.Unlock()
	if err := engine.SubmitOTP(context.Background(), "123456"); err != nil {
		t.Fatalf("SubmitOTP failed: %v", err)
	}
}

func mustState(t *testing.T, engine *Engine, want SessionState) {
	t.Helper()

	got, err := engine.CurrentState(context.Background())
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if got != want {
		t.Fatalf("CurrentState = %v, want %v", got, want)
	}
}

// validQRCode is structurally valid for the default QR config.
var validQRCode = fmt.Sprintf("qr_%032d", 7)
