package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/models"
	"github.com/mx-space/drafts/internal/modules/draft"
	jwtpkg "github.com/mx-space/drafts/internal/pkg/jwt"
	"github.com/mx-space/drafts/internal/pkg/session"
)

type memUsers struct {
	mu     sync.Mutex
	byName map[string]*models.UserModel
	logins []string
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*models.UserModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(_ context.Context, u *models.UserModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", len(m.byName)+1)
	m.byName[u.Username] = u
	return nil
}

func (m *memUsers) RecordLogin(_ context.Context, userID, ip string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, userID+"@"+ip)
	return nil
}

type memSessions struct {
	mu      sync.Mutex
	active  map[string]string
	touched int
	next    int
}

func (m *memSessions) Issue(_ context.Context, userID, ip, ua string, ttl time.Duration) (string, *models.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	row := &models.UserSession{UserID: userID, IP: ip, UA: ua, ExpiresAt: time.Now().Add(ttl)}
	row.ID = fmt.Sprintf("session-%d", m.next)
	m.active[row.ID] = userID
	token, err := jwtpkg.Sign(userID, row.ID, ttl)
	return token, row, err
}

func (m *memSessions) IsActive(_ context.Context, userID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sessionID != "" && m.active[sessionID] == userID, nil
}

func (m *memSessions) Touch(context.Context, string, string) {
	m.mu.Lock()
	m.touched++
	m.mu.Unlock()
}

func (m *memSessions) Revoke(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[sessionID] != userID {
		return session.ErrNotFound
	}
	delete(m.active, sessionID)
	return nil
}

func newTestService(t *testing.T) (*Service, *memUsers, *memSessions) {
	t.Helper()
	users := &memUsers{byName: map[string]*models.UserModel{}}
	sessions := &memSessions{active: map[string]string{}}
	svc := NewService(users, sessions)
	_, err := svc.Register(context.Background(), "alice", "correct horse", "")
	require.NoError(t, err)
	return svc, users, sessions
}

func TestLoginAndValidate(t *testing.T) {
	ctx := context.Background()
	svc, users, sessions := newTestService(t)

	_, _, err := svc.Login(ctx, "alice", "wrong", "127.0.0.1", "test")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", "x", "127.0.0.1", "test")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, sess, err := svc.Login(ctx, "alice", "correct horse", "127.0.0.1", "test")
	require.NoError(t, err)
	assert.Equal(t, []string{sess.UserID + "@127.0.0.1"}, users.logins)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, claims.UserID)
	assert.Equal(t, sess.ID, claims.SessionID)
	assert.Equal(t, 1, sessions.touched)

	edit, err := svc.EditToken(claims.UserID, claims.SessionID)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, edit)
	assert.ErrorIs(t, err, jwtpkg.ErrWrongPurpose)

	require.NoError(t, svc.Logout(ctx, claims.UserID, claims.SessionID))
	require.NoError(t, svc.Logout(ctx, claims.UserID, claims.SessionID))
	_, err = svc.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestRegister(t *testing.T) {
	svc, users, _ := newTestService(t)
	_, err := svc.Register(context.Background(), "alice", "other", "")
	assert.ErrorIs(t, err, ErrUserExists)

	u := users.byName["alice"]
	assert.Equal(t, "alice", u.Name)
	assert.NotEqual(t, "correct horse", u.Password)
	assert.True(t, strings.HasPrefix(u.Password, "$2"))
}

func TestVerifyEditToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, sess, err := svc.Login(ctx, "alice", "correct horse", "", "")
	require.NoError(t, err)
	actor := draft.Actor{UserID: sess.UserID, SessionID: sess.ID}

	token, err := svc.EditToken(actor.UserID, actor.SessionID)
	require.NoError(t, err)

	ok, err := svc.VerifyEditToken(ctx, actor, token)
	require.NoError(t, err)
	assert.True(t, ok)

	sessionToken, err := jwtpkg.Sign(actor.UserID, actor.SessionID, time.Hour)
	require.NoError(t, err)
	for name, tc := range map[string]struct {
		actor draft.Actor
		token string
	}{
		"empty token":     {actor, ""},
		"garbage":         {actor, "not-a-jwt"},
		"session token":   {actor, sessionToken},
		"other session":   {draft.Actor{UserID: actor.UserID, SessionID: "session-99"}, token},
		"other user":      {draft.Actor{UserID: "someone", SessionID: actor.SessionID}, token},
		"no session held": {draft.Actor{UserID: actor.UserID}, token},
	} {
		ok, err := svc.VerifyEditToken(ctx, tc.actor, tc.token)
		require.NoError(t, err, name)
		assert.False(t, ok, name)
	}

	require.NoError(t, svc.Logout(ctx, actor.UserID, actor.SessionID))
	ok, err = svc.VerifyEditToken(ctx, actor, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _, _ := newTestService(t)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"), middleware.Auth(svc))

	post := func(path, body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/api/v1/auth/login", `{"username":"alice","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = post("/api/v1/auth/login", `{"username":"alice"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post("/api/v1/auth/login", `{"username":"alice","password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login loginResponse
	require.NoError(t, jsonDecode(rec, &login))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/edit-token", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)
	var edit struct{ Token string }
	require.NoError(t, jsonDecode(getRec, &edit))
	claims, err := jwtpkg.ParsePurpose(edit.Token, jwtpkg.PurposeEdit)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.SessionID)

	assert.Equal(t, http.StatusNoContent, post("/api/v1/auth/logout", "", login.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, post("/api/v1/auth/logout", "", login.Token).Code)
}

func jsonDecode(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}
