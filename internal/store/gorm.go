package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Gorm implements Provider over a gorm connection.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps db.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &Gorm{db: db}, nil
}

// Tokens returns the token store bound to this connection.
func (g *Gorm) Tokens() TokenStore {
	return &tokenStore{db: g.db}
}

// Accounts returns the account store bound to this connection.
func (g *Gorm) Accounts() AccountStore {
	return &accountStore{db: g.db}
}

// InTx runs fn inside a single transaction. Returning an error rolls it back.
func (g *Gorm) InTx(ctx context.Context, fn func(Stores) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}
