package model

import "time"

// AccountStatus values.
const (
	AccountBanned = 0
	AccountActive = 1
)

// Account represents a player account. The e-mail is the sign-in identity.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=normal
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}

// PasswordReset is an outstanding password recovery link. Only the sha256 of
// the token is stored.
type PasswordReset struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64      `gorm:"index:idx_reset_account;not null" json:"account_id"`
	TokenHash string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index:idx_reset_expires;not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
