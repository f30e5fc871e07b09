package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/motorlist/internal/cache"
	testutil "github.com/charlesng35/motorlist/internal/database/testutil"
	"github.com/charlesng35/motorlist/internal/models"
	"github.com/charlesng35/motorlist/internal/store"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	stores, err := store.NewGorm(db)
	require.NoError(t, err)
	tokens := stores.Tokens()

	require.NoError(t, tokens.Put(ctx, &models.VerificationToken{
		Token:     "expired",
		SubjectID: "user-1",
		Purpose:   models.PurposeActivation,
		ExpiresAt: clock.Now().Add(-time.Hour),
		CreatedAt: clock.Now().Add(-25 * time.Hour),
	}))
	require.NoError(t, tokens.Put(ctx, &models.VerificationToken{
		Token:     "active",
		SubjectID: "user-1",
		Purpose:   models.PurposePasswordReset,
		ExpiresAt: clock.Now().Add(time.Hour),
		CreatedAt: clock.Now(),
	}))

	past := clock.Now().Add(-2 * time.Hour)
	cacheStore := cache.NewDatabaseStore(db, cache.WithClock(func() time.Time { return past }))
	require.NoError(t, cacheStore.Set(ctx, "stale", []byte("v"), time.Minute))
	require.NoError(t, cacheStore.Set(ctx, "forever", []byte("v"), 0))

	c := NewCleaner(tokens,
		WithNow(clock.Now),
		WithCache(cache.NewDatabaseStore(db, cache.WithClock(clock.Now))),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(ctx))

	var remaining []models.VerificationToken
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "active", remaining[0].Token)

	var keys []string
	require.NoError(t, db.Model(&models.CacheEntry{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"forever"}, keys)
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	c := NewCleaner(failingTokens{err: errors.New("tokens down")},
		WithCache(failingCache{err: errors.New("cache down")}),
	)

	err := c.RunOnce(context.Background())
	require.ErrorContains(t, err, "tokens down")
	require.ErrorContains(t, err, "cache down")
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(failingTokens{}, WithSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerStartWithoutPurgersIsNoop(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	<-c.Stop().Done()
}

type failingTokens struct{ err error }

func (f failingTokens) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, f.err }

type failingCache struct{ err error }

func (f failingCache) DeleteExpired(context.Context) (int64, error) { return 0, f.err }

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
