package app

import (
	"gorm.io/gorm"

	redisclient "github.com/homehero/pulse/internal/clients/redis"
	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/services"
)

type Services struct {
	Ingest     services.IngestService
	Analytics  services.AnalyticsService
	Forecast   services.ForecastService
	Experiment services.ExperimentService
	Campaign   services.CampaignService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	cache, err := redisclient.NewResultCache(log)
	if err != nil {
		// The cache is an optimization; a broken Redis should not keep the
		// service from booting.
		log.Warn("Result cache init failed, running uncached", "error", err)
		cache = nil
	}

	// A nil *ResultCache inside a non-nil interface would dodge the service
	// nil checks, so only assign when the client exists.
	var resultCache services.ResultCache
	if cache != nil {
		resultCache = cache
	}

	return Services{
		Ingest:     services.NewIngestService(db, log, reposet.Event, reposet.CampaignClick, cfg.IngestQueueSize),
		Analytics:  services.NewAnalyticsService(db, log, reposet.Event, resultCache, cfg.AnalyticsCacheTTL, cfg.ReportLocation),
		Forecast:   services.NewForecastService(db, log, reposet.Event, resultCache, cfg.AnalyticsCacheTTL, cfg.TrendThreshold, cfg.ReportLocation),
		Experiment: services.NewExperimentService(db, log, reposet.AbTest, reposet.AbTestAssignment, reposet.AbTestConversion, reposet.Event),
		Campaign:   services.NewCampaignService(db, log, reposet.CampaignClick, reposet.Event, cfg.AttributionWindow),
	}, nil
}
