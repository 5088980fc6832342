package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cais-backend/internal/analyses"
	"cais-backend/internal/feedback"
	"cais-backend/internal/optimize"
	"cais-backend/internal/prompts"
	"cais-backend/internal/shared/config"
	"cais-backend/internal/shared/metrics"
	"cais-backend/internal/shared/server/middleware"
	"cais-backend/internal/shared/server/respond"
	"cais-backend/internal/usage"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	FeedbackHandler *feedback.Handler
	PromptHandler   *prompts.Handler
	OptimizeHandler *optimize.Handler
	UsageHandler    *usage.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyses" {
					return "ANALYZE"
				}
				return "DEFAULT"
			},
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 10, Burst: 30},
				"ANALYZE": {Rate: 1, Burst: 5},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.FeedbackHandler != nil {
		deps.FeedbackHandler.RegisterRoutes(api)
	}
	if deps.PromptHandler != nil {
		deps.PromptHandler.RegisterRoutes(api)
	}
	if deps.OptimizeHandler != nil {
		deps.OptimizeHandler.RegisterRoutes(api)
	}
	if deps.UsageHandler != nil {
		deps.UsageHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
