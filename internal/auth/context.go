package auth

import (
	"context"

	"github.com/haasonsaas/scholar/internal/observability"
)

type userContextKey struct{}

// WithUser attaches a user to the context and tags log records with its id.
func WithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	ctx = observability.AddUserID(ctx, user.ID)
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves a user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok
}
