package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/peakprep/peakprep-backend/internal/config"
	"github.com/peakprep/peakprep-backend/internal/handler"
	"github.com/peakprep/peakprep-backend/internal/middleware"
	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/repository"
	"github.com/peakprep/peakprep-backend/internal/response"
	"github.com/peakprep/peakprep-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Session       *handler.SessionHandler
	Question      *handler.QuestionHandler
	Analytics     *handler.AnalyticsHandler
	AdminQuestion *handler.AdminQuestionHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	profiles *repository.ProfileRepository,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// CORS: restrict to the configured list when set, otherwise allow all so
	// dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Auth group (public, rate limited).
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
	}

	// Student group (JWT + single device).
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/me", handlers.Auth.Me)
		studentAPI.POST("/logout", handlers.Auth.Logout)

		studentAPI.POST("/sessions", handlers.Session.CreateSession)
		studentAPI.GET("/sessions", handlers.Session.ListSessions)
		studentAPI.POST("/sessions/:session_id/answers", handlers.Session.SubmitAnswer)
		studentAPI.POST("/sessions/:session_id/complete", handlers.Session.CompleteSession)
		studentAPI.GET("/sessions/:session_id/review", handlers.Session.GetReview)

		studentAPI.GET("/questions", handlers.Question.GetQuestions)
		studentAPI.GET("/topics", middleware.CacheControl(300), handlers.Question.GetTopics)

		studentAPI.GET("/analytics", handlers.Analytics.GetAnalytics)
	}

	// WebSocket group (student WS auth, token via query param).
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/practice", handlers.WS.PracticeStream)
	}

	// Admin group (JWT + authoritative role check).
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireAdminJWT(authService),
		middleware.RequireRole(profiles, model.RoleAdmin),
	)
	{
		adminAPI.GET("/questions", handlers.AdminQuestion.ListQuestions)
		adminAPI.POST("/questions", handlers.AdminQuestion.CreateQuestion)
		adminAPI.POST("/questions/ingest", handlers.AdminQuestion.IngestQuestions)
		adminAPI.GET("/questions/:question_id", handlers.AdminQuestion.GetQuestion)
		adminAPI.PUT("/questions/:question_id", handlers.AdminQuestion.UpdateQuestion)
		adminAPI.DELETE("/questions/:question_id", handlers.AdminQuestion.DeleteQuestion)
	}

	return router
}
