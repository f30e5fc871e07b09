package models

import "time"

// Credential stores the salted Argon2id password hash of a user, one row per user.
type Credential struct {
	UserID       string    `gorm:"primaryKey;size:36" json:"user_id"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	PasswordSalt string    `gorm:"size:64;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
