package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/handlers"
	"github.com/charlesng35/motorlist/internal/middleware"
)

type authRouteDeps struct {
	Handler   *handlers.AccountHandler
	JWT       *iauth.JWTService
	RateLimit gin.HandlerFunc
}

func registerAuthRoutes(engine *gin.Engine, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	auth.Use(deps.RateLimit)
	{
		auth.POST("/register", deps.Handler.Register)
		auth.POST("/login", deps.Handler.Login)
		auth.POST("/activation/resend", deps.Handler.ResendActivation)
		auth.POST("/activation/confirm", deps.Handler.ConfirmActivation)
		auth.GET("/activate", deps.Handler.ActivateLink)
		auth.POST("/password/reset", deps.Handler.RequestPasswordReset)
		auth.POST("/password/reset/confirm", deps.Handler.ConfirmPasswordReset)
	}

	engine.GET("/api/auth/me", middleware.Auth(deps.JWT), deps.Handler.Me)
}
