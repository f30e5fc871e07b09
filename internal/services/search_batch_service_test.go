package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/cache"
	"github.com/charlesng35/motorlist/internal/database/testutil"
	"github.com/charlesng35/motorlist/internal/models"
	apperrors "github.com/charlesng35/motorlist/pkg/errors"
)

type fakeProcessor struct {
	mu        sync.Mutex
	submitErr error
	submitted [][]BatchItem
	polls     map[string]BatchPoll
	pollErrs  map[string]error
}

func (p *fakeProcessor) Submit(_ context.Context, items []BatchItem) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submitted = append(p.submitted, items)
	return fmt.Sprintf("ext-%d", len(p.submitted)), nil
}

func (p *fakeProcessor) Poll(_ context.Context, externalID string) (BatchPoll, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pollErrs[externalID]; err != nil {
		return BatchPoll{}, err
	}
	if poll, ok := p.polls[externalID]; ok {
		return poll, nil
	}
	return BatchPoll{State: BatchRunning}, nil
}

func newSearchService(t *testing.T, processor BatchProcessor, opts ...SearchOption) (*SearchBatchService, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewSearchBatchService(db, processor, opts...)
	require.NoError(t, err)
	return svc, db
}

func logStatuses(t *testing.T, db *gorm.DB) map[models.SearchLogStatus]int {
	t.Helper()
	var logs []models.SearchLog
	require.NoError(t, db.Find(&logs).Error)
	out := map[models.SearchLogStatus]int{}
	for _, entry := range logs {
		out[entry.Status]++
	}
	return out
}

func TestLogSearchValidatesAndStores(t *testing.T) {
	svc, _ := newSearchService(t, &fakeProcessor{})
	ctx := context.Background()

	_, err := svc.LogSearch(ctx, "", "   ", nil)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	entry, err := svc.LogSearch(ctx, "user-1", "audi a4 under 15k", map[string]any{"body": "sedan"})
	require.NoError(t, err)
	require.Equal(t, models.SearchPending, entry.Status)
	require.Equal(t, "user-1", *entry.UserID)
	require.JSONEq(t, `{"body":"sedan"}`, string(entry.Filters))

	loaded, err := svc.GetSearchLog(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry.Query, loaded.Query)

	_, err = svc.GetSearchLog(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateBatchClaimsPendingLogs(t *testing.T) {
	processor := &fakeProcessor{}
	svc, db := newSearchService(t, processor, WithMaxBatchItems(2))
	ctx := context.Background()

	summary, err := svc.CreateBatch(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Items)
	require.Empty(t, processor.submitted)

	for _, q := range []string{"first", "second", "third"} {
		_, err := svc.LogSearch(ctx, "", q, nil)
		require.NoError(t, err)
	}

	summary, err = svc.CreateBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Items)
	require.Equal(t, "ext-1", summary.ExternalID)
	require.Len(t, processor.submitted[0], 2)

	var batch models.SearchBatch
	require.NoError(t, db.First(&batch, "id = ?", summary.BatchID).Error)
	require.Equal(t, models.BatchSubmitted, batch.Status)
	require.Equal(t, "ext-1", batch.ExternalID)
	require.Equal(t, 2, batch.ItemCount)

	require.Equal(t, map[models.SearchLogStatus]int{models.SearchBatched: 2, models.SearchPending: 1}, logStatuses(t, db))

	summary, err = svc.CreateBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Items)
	require.Equal(t, map[models.SearchLogStatus]int{models.SearchBatched: 3}, logStatuses(t, db))
}

func TestCreateBatchSubmitFailureReleasesLogs(t *testing.T) {
	processor := &fakeProcessor{submitErr: errors.New("upstream 503")}
	svc, db := newSearchService(t, processor)
	ctx := context.Background()

	_, err := svc.LogSearch(ctx, "", "volvo estate", nil)
	require.NoError(t, err)

	_, err = svc.CreateBatch(ctx)
	require.ErrorContains(t, err, "upstream 503")
	require.Equal(t, map[models.SearchLogStatus]int{models.SearchPending: 1}, logStatuses(t, db))

	var batch models.SearchBatch
	require.NoError(t, db.First(&batch).Error)
	require.Equal(t, models.BatchFailed, batch.Status)
	require.Contains(t, batch.LastError, "upstream 503")

	processor.submitErr = nil
	summary, err := svc.CreateBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Items)
}

func TestCheckBatchAppliesOutcomesAndContinuesPastErrors(t *testing.T) {
	processor := &fakeProcessor{polls: map[string]BatchPoll{}, pollErrs: map[string]error{}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	svc, db := newSearchService(t, processor, WithMaxBatchItems(1), WithSearchClock(tick))
	ctx := context.Background()

	var logIDs []string
	for _, q := range []string{"golf 2018", "polo", "passat", "tiguan"} {
		entry, err := svc.LogSearch(ctx, "", q, nil)
		require.NoError(t, err)
		logIDs = append(logIDs, entry.ID)
	}
	for range logIDs {
		_, err := svc.CreateBatch(ctx)
		require.NoError(t, err)
	}

	processor.pollErrs["ext-1"] = errors.New("timeout")
	processor.polls["ext-2"] = BatchPoll{State: BatchDone, Results: []BatchItemResult{{ID: logIDs[1], Filters: ParseSearchQuery("polo")}}}
	processor.polls["ext-3"] = BatchPoll{State: BatchLost, Error: "expired"}

	summary, err := svc.CheckBatch(ctx)
	require.ErrorContains(t, err, "timeout")
	require.Equal(t, CheckSummary{Checked: 4, Completed: 1, Failed: 1, Running: 1}, summary)

	polo, err := svc.GetSearchLog(ctx, logIDs[1])
	require.NoError(t, err)
	require.Equal(t, models.SearchCompleted, polo.Status)
	require.JSONEq(t, `{"keywords":["polo"]}`, string(polo.Result))

	passat, err := svc.GetSearchLog(ctx, logIDs[2])
	require.NoError(t, err)
	require.Equal(t, models.SearchPending, passat.Status)
	require.Nil(t, passat.BatchID)

	golf, err := svc.GetSearchLog(ctx, logIDs[0])
	require.NoError(t, err)
	require.Equal(t, models.SearchBatched, golf.Status)

	var completed models.SearchBatch
	require.NoError(t, db.First(&completed, "external_id = ?", "ext-2").Error)
	require.Equal(t, models.BatchCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}

func TestLocalProcessorRoundTrip(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	processor, err := NewLocalProcessor(cache.NewDatabaseStore(db))
	require.NoError(t, err)
	svc, err := NewSearchBatchService(db, processor)
	require.NoError(t, err)
	ctx := context.Background()

	good, err := svc.LogSearch(ctx, "", "tesla model 3 after 2020", nil)
	require.NoError(t, err)
	empty, err := svc.LogSearch(ctx, "", "the and", nil)
	require.NoError(t, err)

	created, err := svc.CreateBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, created.Items)

	checked, err := svc.CheckBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, checked.Completed)

	resolved, err := svc.GetSearchLog(ctx, good.ID)
	require.NoError(t, err)
	require.Equal(t, models.SearchCompleted, resolved.Status)
	require.JSONEq(t, `{"year_from":2020,"keywords":["tesla","model","3"]}`, string(resolved.Result))

	unresolved, err := svc.GetSearchLog(ctx, empty.ID)
	require.NoError(t, err)
	require.Equal(t, models.SearchFailed, unresolved.Status)

	poll, err := processor.Poll(ctx, created.ExternalID)
	require.NoError(t, err)
	require.Equal(t, BatchLost, poll.State)

	_, err = NewLocalProcessor(nil)
	require.Error(t, err)
	_, err = processor.Submit(ctx, nil)
	require.Error(t, err)
}
