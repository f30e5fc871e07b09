package models

import (
	"strings"
	"time"
)

// AccountStatus is the activation state of a marketplace account.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
)

// User is a marketplace account. Email is stored lower-cased so lookups are case-insensitive.
type User struct {
	BaseModel

	Email       string        `gorm:"uniqueIndex;size:320;not null" json:"email"`
	DisplayName string        `gorm:"size:120" json:"display_name"`
	Status      AccountStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	ActivatedAt *time.Time    `json:"activated_at,omitempty"`

	Credential *Credential `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsActive reports whether the account completed activation.
func (u *User) IsActive() bool {
	return u != nil && u.Status == AccountActive
}

// NormalizeEmail trims and lower-cases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
