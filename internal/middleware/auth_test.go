package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/pkg/jwt"
)

type validator map[string]*jwt.Claims

func (v validator) ValidateToken(_ context.Context, raw string) (*jwt.Claims, error) {
	if claims, ok := v[raw]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v := validator{"good": {UserID: "u1", SessionID: "s1"}}
	r.GET("/me", middleware.Auth(v), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":    middleware.CurrentUserID(c),
			"session": middleware.CurrentSessionID(c),
		})
	})
	return r
}

func TestAuth(t *testing.T) {
	r := newRouter()

	for name, setup := range map[string]func(*http.Request){
		"bearer header": func(req *http.Request) { req.Header.Set("Authorization", "Bearer good") },
		"raw header":    func(req *http.Request) { req.Header.Set("Authorization", "good") },
		"cookie":        func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "drafts-token", Value: "good"}) },
		"query":         func(req *http.Request) { req.URL.RawQuery = "token=good" },
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			setup(req)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"user":"u1","session":"s1"}`, rec.Body.String())
		})
	}

	t.Run("rejected", func(t *testing.T) {
		for _, header := range []string{"", "Bearer bad"} {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		}
	})
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", middleware.NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", middleware.NormalizeToken("bearer abc"))
	assert.Equal(t, "abc", middleware.NormalizeToken("abc"))
	assert.Equal(t, "", middleware.NormalizeToken("   "))
}
