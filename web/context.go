package web

import (
	"context"

	"github.com/sennetconsortium/entity-api/domain/auth"
)

type ctxKey string

const userKey ctxKey = "user"

// withUser stashes the resolved caller identity in the request context.
func withUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// userFrom retrieves the caller identity; the auth middleware guarantees an
// entry, so a missing one is treated as anonymous.
func userFrom(ctx context.Context) *auth.User {
	user, ok := ctx.Value(userKey).(*auth.User)
	if !ok {
		return &auth.User{}
	}
	return user
}
