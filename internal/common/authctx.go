package common

import "context"

type ctxKey string

const (
	userIDKey     ctxKey = "auth/user-id"
	userHolderKey ctxKey = "auth/user-holder"
)

// UserHolder lets outer middleware observe the user id resolved by inner
// middleware once the request has been served.
type UserHolder struct {
	ID string
}

// WithUserHolder attaches a holder that WithUserID fills in.
func WithUserHolder(ctx context.Context, h *UserHolder) context.Context {
	return context.WithValue(ctx, userHolderKey, h)
}

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	if h, ok := ctx.Value(userHolderKey).(*UserHolder); ok && h != nil {
		h.ID = id
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
