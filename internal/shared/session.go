package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager resolves cookie based sessions written to Redis by the
// authentication service. It never creates sessions for anonymous callers.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
}

// Session holds the authenticated identity of a request.
type Session struct {
	ID     string
	userID string
	role   string
}

type sessionPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
	}
}

// Load returns the session referenced by the request cookie, or nil when
// the cookie is absent, malformed, unknown or expired. Known sessions have their TTL
// extended.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	// Session IDs are UUIDs; anything else cannot exist in the store.
	id := strings.TrimSpace(cookie.Value)
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	if sm.ttl > 0 {
		_ = sm.client.Expire(ctx, sm.redisKey(id), sm.ttl).Err()
	}
	return &Session{ID: id, userID: stored.UserID, role: strings.ToUpper(strings.TrimSpace(stored.Role))}, nil
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// NewSession builds an in-memory session, mostly for handler tests.
func NewSession(userID, role string) *Session {
	return &Session{userID: userID, role: strings.ToUpper(strings.TrimSpace(role))}
}

// User returns the current user ID.
func (s *Session) User() string {
	if s == nil {
		return ""
	}
	return s.userID
}

// Role returns the user role stored with the session.
func (s *Session) Role() string {
	if s == nil {
		return ""
	}
	return s.role
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
