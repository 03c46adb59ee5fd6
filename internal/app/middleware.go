package app

import (
	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/middleware"
)

type Middleware struct {
	Identity *middleware.IdentityMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Identity: middleware.NewIdentityMiddleware(log, cfg.JWTSecretKey),
	}
}
