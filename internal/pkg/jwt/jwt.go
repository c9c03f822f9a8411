package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultSecret = "mx-drafts-secret-change-me"

// Token purposes. A session token authenticates requests; an edit token authorizes
// draft saves from one editor page and is bound to the session that opened it.
const (
	PurposeSession = "session"
	PurposeEdit    = "edit"
)

var secret = []byte(defaultSecret)

var ErrWrongPurpose = errors.New("token used for the wrong purpose")

// SetSecret configures the signing secret (call on startup).
func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

// Claims is the JWT payload.
type Claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	Purpose   string `json:"pur"`
	jwtlib.RegisteredClaims
}

func sign(userID, sessionID, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		Purpose:   purpose,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Sign creates a session token for the given user and session.
func Sign(userID, sessionID string, ttl time.Duration) (string, error) {
	return sign(userID, sessionID, PurposeSession, ttl)
}

// SignEditToken creates an edit token bound to the user and session.
func SignEditToken(userID, sessionID string, ttl time.Duration) (string, error) {
	return sign(userID, sessionID, PurposeEdit, ttl)
}

// Parse validates a token string and returns the claims.
func Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ParsePurpose parses the token and requires the given purpose.
func ParsePurpose(tokenStr, purpose string) (*Claims, error) {
	claims, err := Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}
