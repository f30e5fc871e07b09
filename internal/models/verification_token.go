package models

import "time"

// TokenPurpose names the flow a verification token belongs to. Tokens of one
// purpose are never accepted by another flow.
type TokenPurpose string

const (
	PurposeActivation    TokenPurpose = "activation"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	return p == PurposeActivation || p == PurposePasswordReset
}

// VerificationToken is a single-use expiring token issued to a subject.
type VerificationToken struct {
	Token     string       `gorm:"primaryKey;size:128" json:"-"`
	SubjectID string       `gorm:"size:36;not null;index:idx_verification_subject_purpose,priority:1" json:"subject_id"`
	Purpose   TokenPurpose `gorm:"size:32;not null;index:idx_verification_subject_purpose,priority:2" json:"purpose"`
	ExpiresAt time.Time    `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time    `gorm:"not null;index:idx_verification_subject_purpose,priority:3" json:"created_at"`
}

// ExpiredAt reports whether the token is no longer valid at now.
func (t *VerificationToken) ExpiredAt(now time.Time) bool {
	return t == nil || !t.ExpiresAt.After(now)
}
