package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/handlers"
	"github.com/charlesng35/motorlist/internal/middleware"
)

func registerSearchRoutes(engine *gin.Engine, handler *handlers.SearchHandler, jwt *iauth.JWTService) {
	search := engine.Group("/api/search")
	search.Use(middleware.OptionalAuth(jwt))
	{
		search.POST("/logs", handler.Log)
		search.GET("/logs/:id", handler.Get)
	}
}
