package authgate

import "context"

type deviceNameContextKey struct{}
type clientIPContextKey struct{}

// WithDeviceName attaches this device's human-readable name to ctx. The
// HTTP backend forwards it as X-Device-Name so the other side of a
// cross-device approval can show which device decided.
//
//	Docs: docs/qr_approval.md
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameContextKey{}, name)
}

// WithClientIP attaches the caller's IP address to ctx. The engine records it
// in audit events; it is never sent to the backend.
//
//	Docs: docs/audit.md
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func deviceNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	name, _ := ctx.Value(deviceNameContextKey{}).(string)
	return name
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
