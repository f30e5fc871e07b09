package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/models"
)

type tokenStore struct {
	db *gorm.DB
}

func (s *tokenStore) Put(ctx context.Context, token *models.VerificationToken) error {
	if token == nil || token.Token == "" || token.SubjectID == "" {
		return errors.New("store: token and subject id are required")
	}
	if !token.Purpose.Valid() {
		return fmt.Errorf("store: unknown token purpose %q", token.Purpose)
	}
	if !token.ExpiresAt.After(token.CreatedAt) && !token.CreatedAt.IsZero() {
		return errors.New("store: token must expire after it is created")
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("store: put token: %w", translate(err))
	}
	return nil
}

func (s *tokenStore) FindActive(ctx context.Context, subjectID string, purpose models.TokenPurpose, now time.Time) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND purpose = ? AND expires_at > ?", subjectID, purpose, now.UTC()).
		Order("created_at DESC").
		First(&token).Error
	return found(&token, err, "find active token")
}

func (s *tokenStore) FindByTokenAndSubject(ctx context.Context, token, subjectID string, now time.Time) (*models.VerificationToken, error) {
	if token == "" || subjectID == "" {
		return nil, nil
	}
	var row models.VerificationToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND subject_id = ? AND expires_at > ?", token, subjectID, now.UTC()).
		First(&row).Error
	return found(&row, err, "find token")
}

func (s *tokenStore) Consume(ctx context.Context, token, subjectID string, purpose models.TokenPurpose) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("token = ? AND subject_id = ? AND purpose = ?", token, subjectID, purpose).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return false, fmt.Errorf("store: consume token: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *tokenStore) DeleteAllForSubject(ctx context.Context, subjectID string, purposes ...models.TokenPurpose) (int64, error) {
	query := s.db.WithContext(ctx).Where("subject_id = ?", subjectID)
	if len(purposes) > 0 {
		query = query.Where("purpose IN ?", purposes)
	}
	result := query.Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *tokenStore) CountRecentlyCreated(ctx context.Context, subjectID string, purpose models.TokenPurpose, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.VerificationToken{}).
		Where("subject_id = ? AND purpose = ? AND created_at > ?", subjectID, purpose, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: count tokens: %w", err)
	}
	return count, nil
}

func (s *tokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete expired tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func found[T any](row *T, err error, op string) (*T, error) {
	if err == nil {
		return row, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("store: %s: %w", op, err)
}
