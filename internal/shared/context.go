package shared

import (
	"context"
	"strings"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// AuthenticatedSession returns the session only when it names a user.
func AuthenticatedSession(ctx context.Context) (*Session, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil || strings.TrimSpace(sess.User()) == "" {
		return nil, false
	}
	return sess, true
}
