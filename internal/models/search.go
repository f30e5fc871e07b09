package models

import (
	"time"

	"gorm.io/datatypes"
)

// SearchLogStatus tracks a logged AI search through batch processing.
type SearchLogStatus string

const (
	SearchPending   SearchLogStatus = "pending"
	SearchBatched   SearchLogStatus = "batched"
	SearchCompleted SearchLogStatus = "completed"
	SearchFailed    SearchLogStatus = "failed"
)

// SearchLog is a free-text car search submitted by a visitor, resolved into
// structured filters by the batch jobs.
type SearchLog struct {
	BaseModel

	UserID  *string         `gorm:"size:36;index" json:"user_id,omitempty"`
	Query   string          `gorm:"size:500;not null" json:"query"`
	Filters datatypes.JSON  `json:"filters,omitempty"`
	Status  SearchLogStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	BatchID *string         `gorm:"size:36;index" json:"batch_id,omitempty"`
	Result  datatypes.JSON  `json:"result,omitempty"`
}

// SearchBatchStatus tracks a submitted batch.
type SearchBatchStatus string

const (
	BatchSubmitted SearchBatchStatus = "submitted"
	BatchCompleted SearchBatchStatus = "completed"
	BatchFailed    SearchBatchStatus = "failed"
)

// SearchBatch groups search logs handed to the batch processor in one submission.
type SearchBatch struct {
	BaseModel

	Status      SearchBatchStatus `gorm:"size:16;not null;index" json:"status"`
	ExternalID  string            `gorm:"size:128;index" json:"external_id"`
	ItemCount   int               `json:"item_count"`
	SubmittedAt time.Time         `json:"submitted_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	LastError   string            `gorm:"size:500" json:"last_error,omitempty"`
}
