package preference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/middleware"
)

type memOptions struct {
	values map[string]string
	reads  int
	err    error
}

func (m *memOptions) Get(_ context.Context, name string) (string, bool, error) {
	m.reads++
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memOptions) Put(_ context.Context, name, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[name] = value
	return nil
}

func TestDraftsEnabled(t *testing.T) {
	ctx := context.Background()
	store := &memOptions{values: map[string]string{"drafts_enable:bob": "false", "drafts_enable:eve": "maybe"}}
	svc := NewService(store)

	on, err := svc.DraftsEnabled(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = svc.DraftsEnabled(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = svc.DraftsEnabled(ctx, "eve")
	assert.Error(t, err)

	reads := store.reads
	_, _ = svc.DraftsEnabled(ctx, "alice")
	assert.Equal(t, reads, store.reads)

	require.NoError(t, svc.SetDraftsEnabled(ctx, "alice", false))
	assert.Equal(t, "false", store.values["drafts_enable:alice"])
	on, err = svc.DraftsEnabled(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestStoreErrors(t *testing.T) {
	svc := NewService(&memOptions{values: map[string]string{}, err: errors.New("db down")})
	_, err := svc.DraftsEnabled(context.Background(), "alice")
	assert.Error(t, err)
	assert.Error(t, svc.SetDraftsEnabled(context.Background(), "alice", true))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(&memOptions{values: map[string]string{}})
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"), func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, "alice")
	})

	serve := func(method, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/preferences/drafts", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := serve(http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(http.MethodPut, `{}`).Code)

	rec = serve(http.MethodPut, `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false}`, serve(http.MethodGet, "").Body.String())
}
