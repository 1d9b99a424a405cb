package common

import "context"

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user's identifier.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID reports the authenticated user's identifier, if one was attached.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
