package jwt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/pkg/jwt"
)

func TestTokens(t *testing.T) {
	jwt.SetSecret("test-secret")

	t.Run("session token", func(t *testing.T) {
		token, err := jwt.Sign("u1", "s1", time.Hour)
		require.NoError(t, err)

		claims, err := jwt.ParsePurpose(token, jwt.PurposeSession)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "s1", claims.SessionID)

		_, err = jwt.ParsePurpose(token, jwt.PurposeEdit)
		assert.ErrorIs(t, err, jwt.ErrWrongPurpose)
	})

	t.Run("edit token", func(t *testing.T) {
		token, err := jwt.SignEditToken("u1", "s1", time.Hour)
		require.NoError(t, err)

		claims, err := jwt.ParsePurpose(token, jwt.PurposeEdit)
		require.NoError(t, err)
		assert.Equal(t, jwt.PurposeEdit, claims.Purpose)

		_, err = jwt.ParsePurpose(token, jwt.PurposeSession)
		assert.ErrorIs(t, err, jwt.ErrWrongPurpose)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := jwt.Sign("u1", "s1", -time.Minute)
		require.NoError(t, err)
		_, err = jwt.Parse(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := jwt.Sign("u1", "s1", time.Hour)
		require.NoError(t, err)
		jwt.SetSecret("another-secret")
		defer jwt.SetSecret("test-secret")
		_, err = jwt.Parse(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jwt.Parse("not-a-token")
		assert.Error(t, err)
	})
}
