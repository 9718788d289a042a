package shared

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "dropship_session", time.Hour), mr
}

// seedSession writes a session the way the auth service does.
func seedSession(t *testing.T, mr *miniredis.Miniredis, userID, role string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, mr.Set("session:"+id, fmt.Sprintf(`{"user_id":%q,"role":%q}`, userID, role)))
	mr.SetTTL("session:"+id, time.Hour)
	return id
}

func TestSessionLoadResolvesStoredIdentity(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	id := seedSession(t, mr, "seller-1", "seller")

	mr.FastForward(30 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: id})
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, "seller-1", sess.User())
	assert.Equal(t, "SELLER", sess.Role())
	assert.Equal(t, time.Hour, mr.TTL("session:"+id))
}

func TestSessionLoadAnonymous(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, sess)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: uuid.NewString()})
	sess, err = sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, "", sess.User())
}

func TestSessionLoadIgnoresMalformedCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	require.NoError(t, mr.Set("session:not-a-uuid", `{"user_id":"root","role":"ADMIN"}`))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "not-a-uuid"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionLoadRejectsCorruptPayload(t *testing.T) {
	sm, mr := newTestManager(t)
	id := uuid.NewString()
	require.NoError(t, mr.Set("session:"+id, "{not json"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: id})
	_, err := sm.Load(context.Background(), req)
	require.Error(t, err)
}

func TestSessionContextRoundTrip(t *testing.T) {
	sess := NewSession("u1", "ADMIN")
	ctx := ContextWithSession(context.Background(), sess)
	assert.Same(t, sess, SessionFromContext(ctx))
	assert.Nil(t, SessionFromContext(context.Background()))
}

func TestAuthenticatedSession(t *testing.T) {
	_, ok := AuthenticatedSession(context.Background())
	assert.False(t, ok)

	ctx := ContextWithSession(context.Background(), NewSession("  ", "ADMIN"))
	_, ok = AuthenticatedSession(ctx)
	assert.False(t, ok)

	ctx = ContextWithSession(context.Background(), NewSession("seller-1", "seller"))
	sess, ok := AuthenticatedSession(ctx)
	require.True(t, ok)
	assert.Equal(t, "seller-1", sess.User())
	assert.Equal(t, "SELLER", sess.Role())
}
