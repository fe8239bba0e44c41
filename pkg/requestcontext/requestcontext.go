// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets the values; services read them
// without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

// Role is the caller's role as asserted by the auth provider.
type Role string

const (
	// RoleCentral is the central authority: verifies batches, manages regions.
	RoleCentral Role = "CENTRAL"
	// RoleRegional is a regional submitter: creates and pays batches for its
	// own region only.
	RoleRegional Role = "REGIONAL"
)

type (
	userIDKey      struct{}
	roleKey        struct{}
	regionCodeKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WithUserID stores the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}

// WithRole stores the caller's role.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// CallerRole returns the caller's role, or "" when unauthenticated.
func CallerRole(ctx context.Context) Role {
	v, _ := ctx.Value(roleKey{}).(Role)
	return v
}

// WithRegionCode stores the caller's region affiliation.
func WithRegionCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, regionCodeKey{}, code)
}

// RegionCode returns the caller's region affiliation, or "" for central
// callers.
func RegionCode(ctx context.Context) string {
	v, _ := ctx.Value(regionCodeKey{}).(string)
	return v
}

// WithRequestID stores the correlation id assigned by middleware.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime pins the request time; tests use it to inject a fixed clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now returns the pinned request time, falling back to time.Now.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
