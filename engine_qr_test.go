package authgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func qrEngine(t *testing.T) (*Engine, *fakeBackend, *testClock) {
	t.Helper()

	engine, backend, _, clock := newTestEngine(t, testConfig())
	loginAuthenticated(t, engine, backend)
	backend.mu.Lock()
	backend.validateReq = QRApprovalRequest{
		Device: DeviceInfo{Name: "Chrome on Windows", Location: "Berlin, DE", IP: "203.0.113.9"},
	}
	backend.mu.Unlock()
	return engine, backend, clock
}

func TestValidateScanMalformedFailsLocally(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	for _, code := range []string{"", "abc", "has space in it x", "qr!" + validQRCode} {
		if _, err := engine.ValidateScan(context.Background(), code); !errors.Is(err, ErrQRCodeMalformed) {
			t.Fatalf("ValidateScan(%q) = %v, want ErrQRCodeMalformed", code, err)
		}
	}
	if _, _, _, validates, _ := backend.calls(); validates != 0 {
		t.Fatalf("malformed codes reached the backend %d times", validates)
	}
}

func TestValidateScanRequiresAuthenticatedSession(t *testing.T) {
	engine, backend, _, _ := newTestEngine(t, testConfig())

	if _, err := engine.ValidateScan(context.Background(), validQRCode); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("ValidateScan unauthenticated = %v, want ErrNotAuthenticated", err)
	}

	// A provisional session is not enough either.
	loginPending(t, engine)
	if _, err := engine.ValidateScan(context.Background(), validQRCode); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("ValidateScan pending step-up = %v, want ErrNotAuthenticated", err)
	}
	if _, _, _, validates, _ := backend.calls(); validates != 0 {
		t.Fatal("unauthenticated scan reached the backend")
	}
}

func TestValidateScanReturnsRequestMetadata(t *testing.T) {
	engine, _, clock := qrEngine(t)

	req, err := engine.ValidateScan(context.Background(), validQRCode)
	if err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	if req.QRToken != validQRCode {
		t.Fatalf("request token = %q, want the scanned code", req.QRToken)
	}
	if req.Device.Name != "Chrome on Windows" {
		t.Fatalf("device name = %q", req.Device.Name)
	}
	// The backend sent no timestamps, so the local default TTL applies.
	if want := clock.Now().Add(testConfig().QR.DefaultTTL); !req.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", req.ExpiresAt, want)
	}
	if got := engine.ScanStatus(validQRCode); got != ScanAwaitingDecision {
		t.Fatalf("ScanStatus = %v, want ScanAwaitingDecision", got)
	}
}

func TestValidateScanRescanUsesCachedRequest(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	first, err := engine.ValidateScan(context.Background(), validQRCode)
	if err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	second, err := engine.ValidateScan(context.Background(), validQRCode)
	if err != nil {
		t.Fatalf("re-scan failed: %v", err)
	}
	if *first != *second {
		t.Fatal("re-scan returned different metadata")
	}
	if _, _, _, validates, _ := backend.calls(); validates != 1 {
		t.Fatalf("backend validated %d times, want 1", validates)
	}
}

func TestValidateScanDeduplicatesInFlight(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.validateGate = gate
	backend.mu.Unlock()

	firstDone := make(chan error, 1)
	go func() {
		_, err := engine.ValidateScan(context.Background(), validQRCode)
		firstDone <- err
	}()

	// Wait for the first scan to reach the blocked backend call.
	deadline := time.After(2 * time.Second)
	for {
		if _, _, _, validates, _ := backend.calls(); validates == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first scan never reached the backend")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := engine.ValidateScan(context.Background(), validQRCode); !errors.Is(err, ErrQRValidationInFlight) {
		t.Fatalf("concurrent scan = %v, want ErrQRValidationInFlight", err)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if _, _, _, validates, _ := backend.calls(); validates != 1 {
		t.Fatalf("backend validated %d times, want 1", validates)
	}
}

func TestValidateScanInvalidCodeIsRemembered(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	backend.mu.Lock()
	backend.validateErr = ErrQRCodeInvalid
	backend.mu.Unlock()

	if _, err := engine.ValidateScan(context.Background(), validQRCode); !errors.Is(err, ErrQRCodeInvalid) {
		t.Fatalf("ValidateScan = %v, want ErrQRCodeInvalid", err)
	}
	// The verdict is retained; the immediate re-scan is refused locally.
	if _, err := engine.ValidateScan(context.Background(), validQRCode); !errors.Is(err, ErrQRCodeInvalid) {
		t.Fatalf("re-scan = %v, want ErrQRCodeInvalid", err)
	}
	if _, _, _, validates, _ := backend.calls(); validates != 1 {
		t.Fatalf("backend validated %d times, want 1", validates)
	}
}

func TestValidateScanTransportFailureAllowsCleanRescan(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	backend.mu.Lock()
	backend.validateErr = ErrBackendUnavailable
	backend.mu.Unlock()

	if _, err := engine.ValidateScan(context.Background(), validQRCode); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("ValidateScan = %v, want ErrBackendUnavailable", err)
	}
	if got := engine.ScanStatus(validQRCode); got != ScanUnknown {
		t.Fatalf("ScanStatus after transport failure = %v, want ScanUnknown", got)
	}

	backend.mu.Lock()
	backend.validateErr = nil
	backend.mu.Unlock()
	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("re-scan after recovery failed: %v", err)
	}
	if _, _, _, validates, _ := backend.calls(); validates != 2 {
		t.Fatalf("backend validated %d times, want 2", validates)
	}
}

func TestDecideApprove(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	decision, err := engine.Decide(context.Background(), validQRCode, true)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decision != DecisionApproved {
		t.Fatalf("decision = %v, want DecisionApproved", decision)
	}
	if got := engine.ScanStatus(validQRCode); got != ScanApproved {
		t.Fatalf("ScanStatus = %v, want ScanApproved", got)
	}

	// At most one decision per request from this device.
	if _, err := engine.Decide(context.Background(), validQRCode, false); !errors.Is(err, ErrQRAlreadyDecided) {
		t.Fatalf("second Decide = %v, want ErrQRAlreadyDecided", err)
	}
	if _, _, _, _, decides := backend.calls(); decides != 1 {
		t.Fatalf("backend saw %d decides, want 1", decides)
	}
}

func TestDecideReject(t *testing.T) {
	engine, _, _ := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	decision, err := engine.Decide(context.Background(), validQRCode, false)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decision != DecisionRejected {
		t.Fatalf("decision = %v, want DecisionRejected", decision)
	}
	if got := engine.ScanStatus(validQRCode); got != ScanRejected {
		t.Fatalf("ScanStatus = %v, want ScanRejected", got)
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	engine, _, _ := qrEngine(t)

	if _, err := engine.Decide(context.Background(), validQRCode, true); !errors.Is(err, ErrQRUnknownRequest) {
		t.Fatalf("Decide = %v, want ErrQRUnknownRequest", err)
	}
}

func TestDecideAfterExpiryFailsLocally(t *testing.T) {
	engine, backend, clock := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	clock.Advance(testConfig().QR.DefaultTTL + time.Second)

	if _, err := engine.Decide(context.Background(), validQRCode, true); !errors.Is(err, ErrQRCodeExpired) {
		t.Fatalf("Decide = %v, want ErrQRCodeExpired", err)
	}
	if _, _, _, _, decides := backend.calls(); decides != 0 {
		t.Fatal("expired decision reached the backend")
	}
	if got := engine.ScanStatus(validQRCode); got != ScanExpired {
		t.Fatalf("ScanStatus = %v, want ScanExpired", got)
	}
}

func TestDecideBackendExpiryWins(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	backend.mu.Lock()
	backend.decideErr = ErrQRCodeExpired
	backend.mu.Unlock()

	if _, err := engine.Decide(context.Background(), validQRCode, true); !errors.Is(err, ErrQRCodeExpired) {
		t.Fatalf("Decide = %v, want ErrQRCodeExpired", err)
	}
	if got := engine.ScanStatus(validQRCode); got != ScanExpired {
		t.Fatalf("ScanStatus = %v, want ScanExpired", got)
	}
}

func TestDecideTransportFailureKeepsRequestOpen(t *testing.T) {
	engine, backend, _ := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	backend.mu.Lock()
	backend.decideErr = ErrBackendUnavailable
	backend.mu.Unlock()

	if _, err := engine.Decide(context.Background(), validQRCode, true); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Decide = %v, want ErrBackendUnavailable", err)
	}
	// Nothing was recorded; the retry goes through.
	backend.mu.Lock()
	backend.decideErr = nil
	backend.mu.Unlock()
	if _, err := engine.Decide(context.Background(), validQRCode, true); err != nil {
		t.Fatalf("retried Decide failed: %v", err)
	}
}

func TestLogoutForgetsTrackedRequests(t *testing.T) {
	engine, _, _ := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	if err := engine.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if got := engine.ScanStatus(validQRCode); got != ScanUnknown {
		t.Fatalf("ScanStatus after logout = %v, want ScanUnknown", got)
	}
	if _, err := engine.Decide(context.Background(), validQRCode, true); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Decide after logout = %v, want ErrNotAuthenticated", err)
	}
}

func TestSweepDropsSettledRequests(t *testing.T) {
	engine, _, clock := qrEngine(t)

	if _, err := engine.ValidateScan(context.Background(), validQRCode); err != nil {
		t.Fatalf("ValidateScan failed: %v", err)
	}
	if _, err := engine.Decide(context.Background(), validQRCode, true); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	clock.Advance(testConfig().QR.RetainDecided + time.Second)
	engine.Sweep()
	if got := engine.ScanStatus(validQRCode); got != ScanUnknown {
		t.Fatalf("ScanStatus after sweep = %v, want ScanUnknown", got)
	}
}

func TestIsQRCodeFormat(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{validQRCode, true},
		{"qr_AbC-123_xyz-0099", true},
		{"short", false},
		{"", false},
		{"qr code with spaces in it", false},
		{"qr+token/equals==padding00", false},
	}
	for _, tc := range cases {
		if got := isQRCodeFormat(tc.code, 16, 128); got != tc.want {
			t.Errorf("isQRCodeFormat(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
