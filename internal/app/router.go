package app

import (
	"github.com/gin-gonic/gin"

	"github.com/homehero/pulse/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, middlewareset Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		IdentityMiddleware: middlewareset.Identity,
		EventsHandler:      handlerset.Events,
		AnalyticsHandler:   handlerset.Analytics,
		ExperimentsHandler: handlerset.Experiments,
		AllowOrigins:       cfg.AllowOrigins,
		ServiceName:        cfg.ServiceName,
	})
}
