package app

import (
	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/repos"
)

type Repos struct {
	Event            repos.EventRepo
	AbTest           repos.AbTestRepo
	AbTestAssignment repos.AbTestAssignmentRepo
	AbTestConversion repos.AbTestConversionRepo
	CampaignClick    repos.CampaignClickRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Event:            repos.NewEventRepo(db, log),
		AbTest:           repos.NewAbTestRepo(db, log),
		AbTestAssignment: repos.NewAbTestAssignmentRepo(db, log),
		AbTestConversion: repos.NewAbTestConversionRepo(db, log),
		CampaignClick:    repos.NewCampaignClickRepo(db, log),
	}
}
