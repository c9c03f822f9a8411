package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mx-space/drafts/internal/models"
	jwtpkg "github.com/mx-space/drafts/internal/pkg/jwt"
)

const DefaultTTL = 30 * 24 * time.Hour

// ErrNotFound is returned when revoking a session that is not active.
var ErrNotFound = errors.New("session not found")

// Store manages signed-in sessions in the user_sessions table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Issue creates a session row and signs a session token bound to it.
func (s *Store) Issue(ctx context.Context, userID, ip, ua string, ttl time.Duration) (string, *models.UserSession, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	row := &models.UserSession{
		UserID:     userID,
		IP:         strings.TrimSpace(ip),
		UA:         strings.TrimSpace(ua),
		LastSeenAt: &now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", nil, err
	}

	token, err := jwtpkg.Sign(userID, row.ID, ttl)
	if err != nil {
		_ = s.db.WithContext(ctx).Delete(row).Error
		return "", nil, err
	}
	return token, row, nil
}

// IsActive reports whether the session exists, belongs to userID, and is neither
// expired nor revoked.
func (s *Store) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Touch records activity on the session.
func (s *Store) Touch(ctx context.Context, userID, sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	_ = s.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("last_seen_at", time.Now()).Error
}

func (s *Store) Revoke(ctx context.Context, userID, sessionID string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired hard-deletes sessions that expired or were revoked before t.
func (s *Store) PurgeExpired(ctx context.Context, t time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Unscoped().
		Where("expires_at < ? OR revoked_at < ?", t, t).
		Delete(&models.UserSession{})
	return res.RowsAffected, res.Error
}
