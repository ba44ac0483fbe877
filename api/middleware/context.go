package middleware

import "context"

type contextKey string

const (
	ctxMemberID contextKey = "member_id"
	ctxRole     contextKey = "actor_role"
)

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

// MemberIDFromContext returns the authenticated member id, or "".
func MemberIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxMemberID)
}

// RoleFromContext returns the authenticated member's role, or "".
func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// WithMemberID injects the member identifier into the context.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return withValue(ctx, ctxMemberID, memberID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, ctxRole, role)
}
