package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "motorlist.db")
	db, err := Open(Config{Driver: "sqlite", Path: path, MaxOpenConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, AutoMigrate(db))
	require.FileExists(t, path)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	for _, model := range []any{
		&models.User{},
		&models.Credential{},
		&models.VerificationToken{},
		&models.SearchLog{},
		&models.SearchBatch{},
		&models.CacheEntry{},
	} {
		require.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
	require.True(t, db.Migrator().HasIndex(&models.VerificationToken{}, "idx_verification_subject_purpose"))
}

func TestTimestampsAreUTC(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	user := models.User{Email: "utc@example.com", Status: models.AccountPending}
	require.NoError(t, db.Create(&user).Error)
	require.Equal(t, time.UTC, user.CreatedAt.Location())
}

func TestCloseNilIsNoop(t *testing.T) {
	require.NoError(t, Close(nil))
	require.Error(t, Ping(context.Background(), nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	return db
}
