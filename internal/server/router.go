package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/homehero/pulse/internal/handlers"
	"github.com/homehero/pulse/internal/middleware"
)

type RouterConfig struct {
	IdentityMiddleware *middleware.IdentityMiddleware
	EventsHandler      *handlers.EventsHandler
	AnalyticsHandler   *handlers.AnalyticsHandler
	ExperimentsHandler *handlers.ExperimentsHandler
	AllowOrigins       []string
	ServiceName        string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Session-ID", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pulse"
	}

	api := router.Group("/api")
	// Spans are no-ops until observability.Init installs a provider.
	api.Use(otelgin.Middleware(serviceName))
	api.Use(cfg.IdentityMiddleware.Resolve())
	{
		// Ingestion
		api.POST("/events", cfg.EventsHandler.RecordEvent)
		api.POST("/events/batch", cfg.EventsHandler.RecordBatch)
		api.POST("/track/profile-view", cfg.EventsHandler.TrackProfileView)

		// Dashboards
		api.GET("/analytics/business", cfg.AnalyticsHandler.GetBusinessAnalytics)
		api.GET("/analytics/forecast", cfg.AnalyticsHandler.GetDemandForecast)
		api.GET("/analytics/campaigns", cfg.AnalyticsHandler.GetCampaignAnalytics)

		// Experiments. The :key segment takes the test key, or the test id
		// for lifecycle and result calls.
		api.POST("/experiments", cfg.ExperimentsHandler.CreateTest)
		api.GET("/experiments/:key/variant", cfg.ExperimentsHandler.GetVariant)
		api.POST("/experiments/:key/convert", cfg.ExperimentsHandler.TrackConversion)
		api.POST("/experiments/:key/start", cfg.ExperimentsHandler.StartTest)
		api.POST("/experiments/:key/end", cfg.ExperimentsHandler.EndTest)
		api.GET("/experiments/:key/results", cfg.ExperimentsHandler.GetTestResults)
	}

	return router
}
