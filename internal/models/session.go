package models

import "time"

// UserSession is a signed-in browser session. Edit tokens are bound to it, so revoking
// the session also invalidates every edit token issued under it.
type UserSession struct {
	Base
	UserID     string     `json:"user_id"      gorm:"type:char(36);index;not null"`
	IP         string     `json:"ip"`
	UA         string     `json:"ua"           gorm:"type:text"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time  `json:"expires_at"   gorm:"index;not null"`
	RevokedAt  *time.Time `json:"revoked_at"   gorm:"index"`
}

func (UserSession) TableName() string { return "user_sessions" }
