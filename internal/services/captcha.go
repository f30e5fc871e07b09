package services

import (
	"context"
	"strings"

	"github.com/charlesng35/motorlist/pkg/crypto"
)

// CaptchaVerifier checks the human-verification answer sent with public requests.
type CaptchaVerifier interface {
	Verify(ctx context.Context, answer string) error
}

// StaticCaptcha accepts a single configured answer.
type StaticCaptcha struct {
	answer string
}

// NewStaticCaptcha returns a verifier for answer. An empty answer yields nil,
// which callers treat as captcha disabled.
func NewStaticCaptcha(answer string) *StaticCaptcha {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}
	return &StaticCaptcha{answer: answer}
}

// Verify compares answer case-insensitively in constant time.
func (c *StaticCaptcha) Verify(_ context.Context, answer string) error {
	if c == nil {
		return nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || !crypto.EqualConstantTime(strings.ToLower(answer), strings.ToLower(c.answer)) {
		return ErrCaptchaInvalid
	}
	return nil
}
