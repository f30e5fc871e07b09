// Package store persists verification tokens and account credentials.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/motorlist/internal/models"
)

// ErrConflict is returned when a write collides with an existing unique key.
var ErrConflict = errors.New("store: conflict")

// TokenStore persists single-use expiring tokens keyed by subject and purpose.
// Lookups that find nothing return a nil row and a nil error.
type TokenStore interface {
	// Put inserts a new token row. CreatedAt is taken from the row so callers
	// with an injected clock stay consistent with CountRecentlyCreated.
	Put(ctx context.Context, token *models.VerificationToken) error
	// FindActive returns the most recently created unexpired token.
	FindActive(ctx context.Context, subjectID string, purpose models.TokenPurpose, now time.Time) (*models.VerificationToken, error)
	// FindByTokenAndSubject returns the row only when it exists, belongs to
	// subjectID and has not expired.
	FindByTokenAndSubject(ctx context.Context, token, subjectID string, now time.Time) (*models.VerificationToken, error)
	// Consume deletes one token of subjectID and purpose. It reports false when
	// no row matched, which means another caller already spent it.
	Consume(ctx context.Context, token, subjectID string, purpose models.TokenPurpose) (bool, error)
	// DeleteAllForSubject removes the subject's tokens of the given purposes, or
	// of every purpose when none are given.
	DeleteAllForSubject(ctx context.Context, subjectID string, purposes ...models.TokenPurpose) (int64, error)
	CountRecentlyCreated(ctx context.Context, subjectID string, purpose models.TokenPurpose, since time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AccountStore reads and updates marketplace accounts and their credentials.
type AccountStore interface {
	Create(ctx context.Context, user *models.User, credential *models.Credential) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	MarkActive(ctx context.Context, id string, at time.Time) error
	UpsertCredential(ctx context.Context, credential *models.Credential) error
	FindCredential(ctx context.Context, userID string) (*models.Credential, error)
}

// Stores bundles the stores bound to one connection or transaction.
type Stores interface {
	Tokens() TokenStore
	Accounts() AccountStore
}

// Provider hands out stores and runs multi-statement mutations atomically.
type Provider interface {
	Stores
	InTx(ctx context.Context, fn func(Stores) error) error
}
