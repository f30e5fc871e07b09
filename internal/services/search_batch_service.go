package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/models"
	apperrors "github.com/charlesng35/motorlist/pkg/errors"
	"github.com/charlesng35/motorlist/pkg/logger"
	"github.com/charlesng35/motorlist/pkg/metrics"
)

const defaultBatchMaxItems = 100

var errNothingClaimed = errors.New("search batch: pending logs were claimed by another run")

// BatchSummary reports what a CreateBatch run did.
type BatchSummary struct {
	BatchID    string `json:"batch_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Items      int    `json:"items"`
}

// CheckSummary reports what a CheckBatch run did.
type CheckSummary struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
}

// SearchOption customises the SearchBatchService.
type SearchOption func(*SearchBatchService)

// WithSearchClock injects a custom time source.
func WithSearchClock(clock func() time.Time) SearchOption {
	return func(s *SearchBatchService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithMaxBatchItems caps how many pending logs one batch claims.
func WithMaxBatchItems(n int) SearchOption {
	return func(s *SearchBatchService) {
		if n > 0 {
			s.maxItems = n
		}
	}
}

// SearchBatchService records AI search queries and moves them through the batch processor.
type SearchBatchService struct {
	db        *gorm.DB
	processor BatchProcessor
	maxItems  int
	now       func() time.Time
	log       *zap.Logger
}

// NewSearchBatchService constructs the service.
func NewSearchBatchService(db *gorm.DB, processor BatchProcessor, opts ...SearchOption) (*SearchBatchService, error) {
	if db == nil {
		return nil, errors.New("search batch service: db is required")
	}
	if processor == nil {
		return nil, errors.New("search batch service: processor is required")
	}
	svc := &SearchBatchService{
		db:        db,
		processor: processor,
		maxItems:  defaultBatchMaxItems,
		now:       time.Now,
		log:       logger.WithModule("batch"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// LogSearch stores a pending search log.
func (s *SearchBatchService) LogSearch(ctx context.Context, userID, query string, filters map[string]any) (*models.SearchLog, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewBadRequest("query is required")
	}

	entry := &models.SearchLog{Query: query, Status: models.SearchPending}
	entry.CreatedAt = s.now().UTC()
	if userID = strings.TrimSpace(userID); userID != "" {
		entry.UserID = &userID
	}
	if len(filters) > 0 {
		raw, err := json.Marshal(filters)
		if err != nil {
			return nil, apperrors.NewBadRequest("filters must be a JSON object").WithInternal(err)
		}
		entry.Filters = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, storeUnavailable(fmt.Errorf("search batch: log search: %w", err))
	}
	return entry, nil
}

// GetSearchLog returns a log by id.
func (s *SearchBatchService) GetSearchLog(ctx context.Context, id string) (*models.SearchLog, error) {
	var entry models.SearchLog
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Search log not found")
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return &entry, nil
}

// CreateBatch claims pending logs into a new batch and submits them. It is a
// no-op when nothing is pending, so repeated ticks are harmless.
func (s *SearchBatchService) CreateBatch(ctx context.Context) (BatchSummary, error) {
	var pending []models.SearchLog
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SearchPending).
		Order("created_at").
		Limit(s.maxItems).
		Find(&pending).Error; err != nil {
		return BatchSummary{}, storeUnavailable(fmt.Errorf("search batch: load pending: %w", err))
	}
	if len(pending) == 0 {
		return BatchSummary{}, nil
	}

	ids := make([]string, 0, len(pending))
	for _, entry := range pending {
		ids = append(ids, entry.ID)
	}

	batch := models.SearchBatch{Status: models.BatchSubmitted, SubmittedAt: s.now().UTC()}
	var claimed []models.SearchLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		result := tx.Model(&models.SearchLog{}).
			Where("id IN ? AND status = ?", ids, models.SearchPending).
			Updates(map[string]any{"status": models.SearchBatched, "batch_id": batch.ID})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errNothingClaimed
		}
		if err := tx.Where("batch_id = ?", batch.ID).Order("created_at").Find(&claimed).Error; err != nil {
			return err
		}
		batch.ItemCount = len(claimed)
		return tx.Model(&batch).Update("item_count", batch.ItemCount).Error
	})
	if errors.Is(err, errNothingClaimed) {
		return BatchSummary{}, nil
	}
	if err != nil {
		return BatchSummary{}, storeUnavailable(fmt.Errorf("search batch: claim logs: %w", err))
	}

	items := make([]BatchItem, 0, len(claimed))
	for _, entry := range claimed {
		items = append(items, BatchItem{ID: entry.ID, Query: entry.Query})
	}

	externalID, submitErr := s.processor.Submit(ctx, items)
	if submitErr != nil {
		revertErr := s.releaseBatch(ctx, &batch, submitErr.Error())
		s.log.Warn("batch submit failed", zap.String("batch_id", batch.ID), zap.Error(submitErr))
		return BatchSummary{}, apperrors.Wrap(multierr.Append(submitErr, revertErr), "search batch submission failed")
	}

	if err := s.db.WithContext(ctx).Model(&batch).Update("external_id", externalID).Error; err != nil {
		return BatchSummary{}, storeUnavailable(fmt.Errorf("search batch: record external id: %w", err))
	}
	metrics.SearchBatchItems.WithLabelValues("submitted").Add(float64(len(items)))
	s.log.Info("batch submitted",
		zap.String("batch_id", batch.ID),
		zap.String("external_id", externalID),
		zap.Int("items", len(items)),
	)
	return BatchSummary{BatchID: batch.ID, ExternalID: externalID, Items: len(items)}, nil
}

// CheckBatch polls every submitted batch. A failure on one batch is collected
// and the remaining batches are still checked.
func (s *SearchBatchService) CheckBatch(ctx context.Context) (CheckSummary, error) {
	var batches []models.SearchBatch
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.BatchSubmitted).
		Order("submitted_at").
		Find(&batches).Error; err != nil {
		return CheckSummary{}, storeUnavailable(fmt.Errorf("search batch: load submitted: %w", err))
	}

	var (
		summary CheckSummary
		errs    error
	)
	for i := range batches {
		batch := &batches[i]
		summary.Checked++

		poll, err := s.processor.Poll(ctx, batch.ExternalID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("poll batch %s: %w", batch.ID, err))
			continue
		}

		switch poll.State {
		case BatchDone:
			if err := s.completeBatch(ctx, batch, poll.Results); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("complete batch %s: %w", batch.ID, err))
				continue
			}
			summary.Completed++
		case BatchLost:
			if err := s.releaseBatch(ctx, batch, poll.Error); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("release batch %s: %w", batch.ID, err))
				continue
			}
			summary.Failed++
		default:
			summary.Running++
		}
	}

	if errs != nil {
		s.log.Warn("batch check finished with errors", zap.Error(errs))
		return summary, apperrors.Wrap(errs, "search batch check failed")
	}
	return summary, nil
}

func (s *SearchBatchService) completeBatch(ctx context.Context, batch *models.SearchBatch, results []BatchItemResult) error {
	now := s.now().UTC()
	completed, failed := 0, 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, result := range results {
			raw, err := json.Marshal(result.Filters)
			if err != nil {
				return err
			}
			status := models.SearchCompleted
			if result.Error != "" {
				status = models.SearchFailed
			}
			res := tx.Model(&models.SearchLog{}).
				Where("id = ? AND batch_id = ?", result.ID, batch.ID).
				Updates(map[string]any{"status": status, "result": datatypes.JSON(raw)})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			if status == models.SearchFailed {
				failed++
			} else {
				completed++
			}
		}
		if err := tx.Model(&models.SearchLog{}).
			Where("batch_id = ? AND status = ?", batch.ID, models.SearchBatched).
			Update("status", models.SearchFailed).Error; err != nil {
			return err
		}
		return tx.Model(batch).Updates(map[string]any{
			"status":       models.BatchCompleted,
			"completed_at": now,
		}).Error
	})
	if err != nil {
		return err
	}
	metrics.SearchBatchItems.WithLabelValues("completed").Add(float64(completed))
	metrics.SearchBatchItems.WithLabelValues("failed").Add(float64(failed))
	return nil
}

// releaseBatch marks the batch failed and returns its logs to pending so the
// next CreateBatch picks them up again.
func (s *SearchBatchService) releaseBatch(ctx context.Context, batch *models.SearchBatch, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SearchLog{}).
			Where("batch_id = ? AND status = ?", batch.ID, models.SearchBatched).
			Updates(map[string]any{"status": models.SearchPending, "batch_id": nil}).Error; err != nil {
			return err
		}
		return tx.Model(batch).Updates(map[string]any{
			"status":     models.BatchFailed,
			"last_error": reason,
		}).Error
	})
}
