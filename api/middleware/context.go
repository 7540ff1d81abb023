package middleware

import "context"

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxEmail     contextKey = "email"
	ctxRole      contextKey = "actor_role"
	ctxActiveOrg contextKey = "active_organization_id"
	ctxAccessJTI contextKey = "access_jti"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func EmailFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxEmail)
}

// RoleFromContext returns the role carried by the access token, if any.
func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

func ActiveOrganizationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxActiveOrg)
}

func AccessIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxAccessJTI)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithEmail injects the authenticated e-mail into the context.
func WithEmail(ctx context.Context, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxEmail, email)
}
