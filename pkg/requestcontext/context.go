// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
// Usage in services (read values):
//
//	wallet := requestcontext.ActorWallet(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActorWallet(ctx, wallet)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	actorWalletKey struct{}
	adminWalletKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	deviceKey      struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyActorWallet = actorWalletKey{}
	ContextKeyAdminWallet = adminWalletKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyDevice      = deviceKey{}
)

// ActorWallet retrieves the authenticated party's wallet address from the
// context. Returns "" if not set.
func ActorWallet(ctx context.Context) string {
	if wallet, ok := ctx.Value(ContextKeyActorWallet).(string); ok {
		return wallet
	}
	return ""
}

// WithActorWallet injects the authenticated party's wallet address.
func WithActorWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, ContextKeyActorWallet, wallet)
}

// AdminWallet retrieves the authenticated admin's wallet address from the
// context. Returns "" if the request is not an admin request.
func AdminWallet(ctx context.Context) string {
	if wallet, ok := ctx.Value(ContextKeyAdminWallet).(string); ok {
		return wallet
	}
	return ""
}

// WithAdminWallet injects the authenticated admin's wallet address.
func WithAdminWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, ContextKeyAdminWallet, wallet)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Device retrieves a short client device summary ("Chrome 120 on Linux")
// captured by middleware. Returns "" for non-HTTP contexts.
func Device(ctx context.Context) string {
	if device, ok := ctx.Value(ContextKeyDevice).(string); ok {
		return device
	}
	return ""
}

// WithDevice injects a device summary into the context.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ContextKeyDevice, device)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (sweeper, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need one consistent time across a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
