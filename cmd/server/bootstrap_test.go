package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/motorlist/internal/app"
	"github.com/charlesng35/motorlist/internal/cache"
	"github.com/charlesng35/motorlist/pkg/logger"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "motorlist.sqlite"),
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "bootstrap-test-secret-key-with-32-bytes",
				Issuer: "motorlist",
				TTL:    time.Minute,
			},
			RateLimit: app.RateLimitSettings{Requests: 10, Window: time.Minute},
		},
		Scheduler: app.SchedulerConfig{InternalToken: "internal-secret"},
		Batch:     app.BatchConfig{MaxItems: 5},
	}
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver:       " PostgreSQL ",
		MaxOpenConns: 8,
		Postgres: app.DBAuthConfig{
			Host:     " db.internal ",
			Port:     5432,
			Database: "motorlist",
			Username: "svc",
			Password: "pw",
			Options:  map[string]string{"sslmode": "disable"},
		},
	}}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "motorlist", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, "pw", dbCfg.Password)
	require.Equal(t, "disable", dbCfg.Options["sslmode"])
	require.Equal(t, 8, dbCfg.MaxOpenConns)

	cfg.Database.Driver = ""
	cfg.Database.Path = " ./data/test.sqlite "
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./data/test.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)

	cfg.Database.Driver = "mysql"
	cfg.Database.MySQL = app.DBAuthConfig{Host: "mysql", Port: 3306, Database: "ml"}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql", dbCfg.Host)
	require.Equal(t, "ml", dbCfg.Name)

	cfg.Database.Driver = "oracle"
	require.Equal(t, "oracle", convertDatabaseConfig(cfg).Driver)
}

func TestBootstrapRuntimeWithDatabaseCache(t *testing.T) {
	cfg := testConfig(t)
	log := logger.WithModule("test")

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.Router)
	require.Nil(t, stack.Redis)
	require.Nil(t, stack.Dispatcher)
	_, isDB := stack.Cache.(*cache.DatabaseStore)
	require.True(t, isDB)

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBootstrapRuntimeUsesRedisWhenReachable(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.Redis = app.RedisCacheConfig{Enabled: true, Address: srv.Addr(), Timeout: time.Second}
	log := logger.WithModule("test")

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.Redis)
	require.Same(t, stack.Redis, stack.Cache)
}

func TestBootstrapRuntimeFallsBackWhenRedisUnavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := testConfig(t)
	cfg.Cache.Redis = app.RedisCacheConfig{Enabled: true, Address: addr, Timeout: 200 * time.Millisecond}
	log := logger.WithModule("test")

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.Nil(t, stack.Redis)
	_, isDB := stack.Cache.(*cache.DatabaseStore)
	require.True(t, isDB)
}

func TestBootstrapRuntimeStartsScheduler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.CreateBatchSchedule = "*/5 * * * *"
	cfg.Scheduler.CheckBatchSchedule = "*/10 * * * *"
	log := logger.WithModule("test")

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.Dispatcher)
	outcomes := stack.Dispatcher.Dispatch(context.Background(), "*/10 * * * *")
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Succeeded(), "status %d err %v", outcomes[0].Status, outcomes[0].Err)
}

func TestBootstrapRuntimeRejectsInvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.CreateBatchSchedule = "not a cron"

	_, err := bootstrapRuntime(context.Background(), cfg, logger.WithModule("test"))
	require.ErrorContains(t, err, "start scheduler")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "does not exist")

	cfg, err := loadApplicationConfig(filepath.Join("..", "..", "internal", "app", "testdata", "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
}
