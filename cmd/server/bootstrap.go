package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/api"
	"github.com/charlesng35/motorlist/internal/app"
	"github.com/charlesng35/motorlist/internal/app/maintenance"
	"github.com/charlesng35/motorlist/internal/app/scheduler"
	iauth "github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/cache"
	"github.com/charlesng35/motorlist/internal/database"
	"github.com/charlesng35/motorlist/internal/services"
	"github.com/charlesng35/motorlist/internal/store"
	"github.com/charlesng35/motorlist/pkg/logger"
	"github.com/charlesng35/motorlist/pkg/mail"
)

const finalCleanupTimeout = 30 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Cache      cache.Store
	Redis      *cache.RedisStore
	Cleaner    *maintenance.Cleaner
	Dispatcher *scheduler.Dispatcher
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, router and
// background jobs.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Cache = dbStore
	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database cache", zap.Error(err))
		} else {
			stack.Cache = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stores, err := store.NewGorm(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise stores: %w", err)
	}

	mailer, err := mail.FromSettings(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	tokenOpts := []services.AccountTokenOption{
		services.WithLinks(cfg.Email.ActivationURL, cfg.Email.ResetURL),
	}
	if verifier := cfg.Auth.CaptchaVerifier(); verifier != nil {
		tokenOpts = append(tokenOpts, services.WithCaptcha(verifier))
	}
	tokens, err := services.NewAccountTokenService(stores, mailer, cfg.Auth.TokenSettings(), tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise account token service: %w", err)
	}

	processor, err := services.NewLocalProcessor(stack.Cache)
	if err != nil {
		return nil, fmt.Errorf("initialise batch processor: %w", err)
	}
	search, err := services.NewSearchBatchService(stack.DB, processor, services.WithMaxBatchItems(cfg.Batch.MaxItems))
	if err != nil {
		return nil, fmt.Errorf("initialise search batch service: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, cfg, jwtSvc, api.Services{
		Tokens:   tokens,
		Accounts: stores.Accounts(),
		Search:   search,
		Cache:    stack.Cache,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	cleanerOpts := []maintenance.Option{maintenance.WithSchedule(cfg.Scheduler.CleanupSchedule)}
	if stack.Redis == nil {
		cleanerOpts = append(cleanerOpts, maintenance.WithCache(dbStore))
	}
	stack.Cleaner = maintenance.NewCleaner(stores.Tokens(), cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if cfg.Scheduler.Enabled {
		stack.Dispatcher, err = scheduler.NewDispatcher(stack.Router, cfg.Scheduler.InternalToken,
			scheduler.WithSchedules(scheduler.Schedules{
				CreateBatch: cfg.Scheduler.CreateBatchSchedule,
				CheckBatch:  cfg.Scheduler.CheckBatchSchedule,
			}),
			scheduler.WithJobTimeout(cfg.Scheduler.JobTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise scheduler: %w", err)
		}
		if err := stack.Dispatcher.Start(); err != nil {
			return nil, fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Info("scheduler disabled")
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, runs a final cleanup and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Dispatcher != nil {
		waitFor(ctx, s.Dispatcher.Stop())
	}

	if s.Cleaner != nil {
		waitFor(ctx, s.Cleaner.Stop())
		cleanupCtx, cancel := context.WithTimeout(context.Background(), finalCleanupTimeout)
		if err := s.Cleaner.RunOnce(cleanupCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		cancel()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// waitFor blocks until running cron jobs finish or ctx expires.
func waitFor(ctx context.Context, done context.Context) {
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:       strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:         strings.TrimSpace(cfg.Database.Path),
		DSN:          strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		// Unsupported drivers surface as an error from database.Open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	dbCfg.Options = auth.Options
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
