package auth

import "context"

type adminKey struct{}

// WithAdmin records the authenticated administrator on ctx.
func WithAdmin(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, adminKey{}, user)
}

// AdminFromContext returns the administrator set by BasicAuth, or "" outside admin routes.
func AdminFromContext(ctx context.Context) string {
	user, _ := ctx.Value(adminKey{}).(string)
	return user
}
