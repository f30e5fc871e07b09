package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/motorlist/internal/models"
)

type accountStore struct {
	db *gorm.DB
}

func (s *accountStore) Create(ctx context.Context, user *models.User, credential *models.Credential) error {
	if user == nil {
		return errors.New("store: user is required")
	}
	user.Email = models.NormalizeEmail(user.Email)
	if user.Status == "" {
		user.Status = models.AccountPending
	}
	user.Credential = credential

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("store: create account: %w", translate(err))
	}
	return nil
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	return found(&user, err, "find account by email")
}

func (s *accountStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	return found(&user, err, "find account")
}

func (s *accountStore) MarkActive(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND status <> ?", id, models.AccountActive).
		Updates(map[string]any{
			"status":       models.AccountActive,
			"activated_at": at,
			"updated_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("store: activate account: %w", err)
	}
	return nil
}

func (s *accountStore) UpsertCredential(ctx context.Context, credential *models.Credential) error {
	if credential == nil || credential.UserID == "" {
		return errors.New("store: credential user id is required")
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"password_hash", "password_salt", "updated_at"}),
		}).
		Create(credential).Error
	if err != nil {
		return fmt.Errorf("store: upsert credential: %w", err)
	}
	return nil
}

func (s *accountStore) FindCredential(ctx context.Context, userID string) (*models.Credential, error) {
	var credential models.Credential
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&credential).Error
	return found(&credential, err, "find credential")
}
