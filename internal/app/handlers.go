package app

import (
	"github.com/homehero/pulse/internal/handlers"
	"github.com/homehero/pulse/internal/logger"
)

type Handlers struct {
	Events      *handlers.EventsHandler
	Analytics   *handlers.AnalyticsHandler
	Experiments *handlers.ExperimentsHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Events:      handlers.NewEventsHandler(log, serviceset.Ingest),
		Analytics:   handlers.NewAnalyticsHandler(log, serviceset.Analytics, serviceset.Forecast, serviceset.Campaign),
		Experiments: handlers.NewExperimentsHandler(log, serviceset.Experiment),
	}
}
