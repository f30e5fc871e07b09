package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/motorlist/internal/database"
	"github.com/charlesng35/motorlist/pkg/logger"
	"github.com/charlesng35/motorlist/pkg/response"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports readiness. It returns 503 when the database cannot be
// reached; an unreachable cache is reported but does not fail the check.
func Health(db *gorm.DB, cache Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthTimeout)
		defer cancel()

		checks := gin.H{"database": "ok"}
		status := http.StatusOK
		if err := database.Ping(ctx, db); err != nil {
			logger.WithModule("http").Warn("database health check failed", zap.Error(err))
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		if cache != nil {
			checks["cache"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				checks["cache"] = "unavailable"
			}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, response.Response{
			Success: status == http.StatusOK,
			Data:    gin.H{"status": overall, "checks": checks},
		})
	}
}
