package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/motorlist/internal/handlers"
	"github.com/charlesng35/motorlist/internal/middleware"
)

// registerInternalRoutes mounts the batch jobs driven by the scheduler. They
// are reachable over HTTP too, but only with the internal token.
func registerInternalRoutes(engine *gin.Engine, handler *handlers.BatchHandler, token string) {
	internal := engine.Group("/internal")
	internal.Use(middleware.InternalToken(token))
	{
		internal.POST("/batch/create", handler.Create)
		internal.POST("/batch/check", handler.Check)
	}
}
