package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jbandu/bag-sub001/internal/gateway"
	"github.com/jbandu/bag-sub001/pkg/config"
	"github.com/jbandu/bag-sub001/pkg/health"
	"github.com/jbandu/bag-sub001/pkg/metrics"
)

// NewRouter creates and configures the API router
func NewRouter(cfg *config.Config, gw *gateway.Service, healthSvc *health.Service, m *metrics.Metrics) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(ErrorHandlingMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	if m != nil {
		router.Use(m.PrometheusMiddleware())
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// Health endpoints (no auth required)
	if healthSvc != nil {
		router.GET("/health", healthSvc.Handler())
		router.GET("/health/live", healthSvc.LivenessHandler())
		router.GET("/health/ready", healthSvc.ReadinessHandler())
	}

	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "route not found")
	})

	// API version info
	router.GET("/api/v1", func(c *gin.Context) {
		SuccessResponse(c, map[string]interface{}{
			"name":    "Baggage Gateway API",
			"version": "1.0.0",
			"status":  "ok",
		})
	})

	handler := NewGatewayHandler(gw)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/call", handler.Call)
		v1.GET("/summary", handler.Summary)

		targets := v1.Group("/targets")
		{
			targets.GET("", handler.ListTargets)
			targets.GET("/:name/health", handler.TargetHealth)
			targets.POST("/:name/breaker/reset", handler.ResetBreaker)
		}

		v1.DELETE("/cache/:target", handler.InvalidateCache)
	}

	return router
}
