package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/charlesng35/motorlist/internal/cache"
)

const defaultBatchPayloadTTL = 48 * time.Hour

// BatchItem is one search log handed to a BatchProcessor.
type BatchItem struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// BatchItemResult is the processed form of a BatchItem.
type BatchItemResult struct {
	ID      string        `json:"id"`
	Filters SearchFilters `json:"filters"`
	Error   string        `json:"error,omitempty"`
}

// BatchState is the processor-side state of a submitted batch.
type BatchState string

const (
	BatchRunning BatchState = "running"
	BatchDone    BatchState = "done"
	BatchLost    BatchState = "failed"
)

// BatchPoll is the answer to a status check.
type BatchPoll struct {
	State   BatchState
	Results []BatchItemResult
	Error   string
}

// BatchProcessor resolves search queries asynchronously.
type BatchProcessor interface {
	Submit(ctx context.Context, items []BatchItem) (string, error)
	Poll(ctx context.Context, externalID string) (BatchPoll, error)
}

// LocalProcessor parks submitted payloads in the shared cache and resolves
// them with ParseSearchQuery when polled.
type LocalProcessor struct {
	cache cache.Store
	ttl   time.Duration
	newID func() string
}

// NewLocalProcessor returns a processor backed by store.
func NewLocalProcessor(store cache.Store) (*LocalProcessor, error) {
	if store == nil {
		return nil, errors.New("local batch processor: cache store is required")
	}
	return &LocalProcessor{cache: store, ttl: defaultBatchPayloadTTL, newID: uuid.NewString}, nil
}

// Submit stores items and returns the key they can be polled with.
func (p *LocalProcessor) Submit(ctx context.Context, items []BatchItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("local batch processor: no items")
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("local batch processor: encode: %w", err)
	}
	id := p.newID()
	if err := p.cache.Set(ctx, payloadKey(id), payload, p.ttl); err != nil {
		return "", fmt.Errorf("local batch processor: store payload: %w", err)
	}
	return id, nil
}

// Poll completes the batch. A payload that is no longer in the cache is reported as failed.
func (p *LocalProcessor) Poll(ctx context.Context, externalID string) (BatchPoll, error) {
	payload, ok, err := p.cache.Get(ctx, payloadKey(externalID))
	if err != nil {
		return BatchPoll{}, fmt.Errorf("local batch processor: load payload: %w", err)
	}
	if !ok {
		return BatchPoll{State: BatchLost, Error: "batch payload not found"}, nil
	}

	var items []BatchItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return BatchPoll{State: BatchLost, Error: "batch payload unreadable"}, nil
	}

	results := make([]BatchItemResult, 0, len(items))
	for _, item := range items {
		result := BatchItemResult{ID: item.ID, Filters: ParseSearchQuery(item.Query)}
		if result.Filters.Empty() {
			result.Error = "query has no searchable terms"
		}
		results = append(results, result)
	}

	if err := p.cache.Delete(ctx, payloadKey(externalID)); err != nil {
		return BatchPoll{}, fmt.Errorf("local batch processor: clear payload: %w", err)
	}
	return BatchPoll{State: BatchDone, Results: results}, nil
}

func payloadKey(id string) string {
	return "search-batch:" + id
}
