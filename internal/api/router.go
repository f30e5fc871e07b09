package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/app"
	iauth "github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/cache"
	"github.com/charlesng35/motorlist/internal/handlers"
	"github.com/charlesng35/motorlist/internal/middleware"
	"github.com/charlesng35/motorlist/internal/services"
	"github.com/charlesng35/motorlist/internal/store"
)

// Services bundles the domain services the router exposes.
type Services struct {
	Tokens   *services.AccountTokenService
	Accounts store.AccountStore
	Search   *services.SearchBatchService
	Cache    cache.Store
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
// Scheduled jobs are served by the same engine through the internal routes.
func NewRouter(db *gorm.DB, cfg *app.Config, jwt *iauth.JWTService, svc Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if svc.Tokens == nil || svc.Accounts == nil {
		return nil, fmt.Errorf("account services must be provided")
	}
	if svc.Search == nil {
		return nil, fmt.Errorf("search batch service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	var cachePinger handlers.Pinger
	if pinger, ok := svc.Cache.(handlers.Pinger); ok {
		cachePinger = pinger
	}
	registerHealthRoutes(r, cfg, handlers.Health(db, cachePinger))

	registerAuthRoutes(r, authRouteDeps{
		Handler:   handlers.NewAccountHandler(svc.Tokens, svc.Accounts, jwt),
		JWT:       jwt,
		RateLimit: middleware.RateLimit(svc.Cache, cfg.Auth.RateLimit.Requests, cfg.Auth.RateLimit.Window),
	})

	registerSearchRoutes(r, handlers.NewSearchHandler(svc.Search), jwt)

	registerInternalRoutes(r, handlers.NewBatchHandler(svc.Search), cfg.Scheduler.InternalToken)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
