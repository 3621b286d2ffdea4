package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/prepstack/attempt-service/internal/config"
	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
	"github.com/prepstack/attempt-service/internal/services"
	"github.com/prepstack/attempt-service/internal/utils"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	seriesHandler  *SeriesHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(
			serviceManager.Attempt(), serviceManager.Proctor(), serviceManager.Analytics(), logger),
		seriesHandler:  NewSeriesHandler(serviceManager.Series(), logger),
		authMiddleware: NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		series := v1.Group("/series")
		{
			series.GET("", hm.seriesHandler.ListSeries)
			series.GET("/:id", hm.seriesHandler.GetSeries)
			series.GET("/:id/stats",
				hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin),
				hm.seriesHandler.GetSeriesStats)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/progress", hm.attemptHandler.SaveProgress)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.GET("/:id/review", hm.attemptHandler.ReviewAttempt)
			attempts.GET("/:id/analytics", hm.attemptHandler.GetAttemptAnalytics)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.POST("/:id/timeout", hm.attemptHandler.HandleTimeout)
			attempts.POST("/:id/cheat-events", hm.attemptHandler.LogCheatEvent)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "attempt-service",
		})
	})
}
