package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/school-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/school-auth/internal/transport/http/middleware"
	"github.com/ErlanBelekov/school-auth/internal/usecase"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, authHandler *handler.AuthHandler, gate *usecase.Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Public onboarding and recovery routes
	auth := r.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/verify-otp", authHandler.VerifyOTP)
	auth.POST("/resend-otp", authHandler.ResendOTP)
	auth.POST("/login", authHandler.Login)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)

	// Protected routes
	authMW := middleware.Auth(gate, logger)
	protected := r.Group("/auth", authMW)
	protected.GET("/me", authHandler.Me)
	protected.POST("/change-password", authHandler.ChangePassword)

	return r
}
