package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/handler"
	"github.com/stemsi/examsim-backend/internal/logger"
	"github.com/stemsi/examsim-backend/internal/metrics"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Session  *handler.ExamSessionHandler
	Question *handler.QuestionHandler
	Progress *handler.ProgressHandler
	Monitor  *handler.MonitorHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable rate limiting.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	m *metrics.Metrics,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(logger.GinMiddleware(log))

	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/metrics", "/ws/"},
	}))

	router.GET("/health", handlers.System.Health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService))
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	{
		api.GET("/auth/me", handlers.Auth.GetProfile)
		api.GET("/progress", handlers.Progress.GetProgress)
		api.GET("/questions/categories", middleware.CacheControl(60), handlers.Question.ListCategories)
	}

	// ─── 2. Session Group ──────────────────────────────────────────────
	sessions := api.Group("/sessions")
	sessions.Use(middleware.NoStore(), response.SessionScope("id"))
	{
		sessions.POST("", handlers.Session.StartSession)
		sessions.GET("", handlers.Session.ListSessions)
		sessions.GET("/:id", handlers.Session.GetSession)
		sessions.GET("/:id/events", handlers.Monitor.SessionEventsSSE)
		sessions.GET("/:id/navigator", handlers.Session.GetNavigator)
		sessions.GET("/:id/report", handlers.Session.GetReport)
		sessions.GET("/:id/questions/:qid/feedback", handlers.Session.GetFeedback)

		sessions.POST("/:id/answer", handlers.Session.SelectAnswer)
		sessions.POST("/:id/strike", handlers.Session.ToggleStrike)
		sessions.POST("/:id/flag", handlers.Session.ToggleFlag)
		sessions.POST("/:id/confidence", handlers.Session.SetConfidence)
		sessions.POST("/:id/highlights", handlers.Session.AddHighlight)
		sessions.DELETE("/:id/questions/:qid/highlights", handlers.Session.ClearHighlights)
		sessions.POST("/:id/navigate", handlers.Session.Navigate)
		sessions.POST("/:id/end", handlers.Session.EndSession)
		sessions.POST("/:id/review", handlers.Session.EnterReview)
		sessions.POST("/:id/suspend", handlers.Session.SuspendSession)
	}

	// ─── 3. WebSocket Group (WS Auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService), response.SessionScope("id"))
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}
