package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/types"
)

type CampaignClickRepo interface {
	Create(ctx context.Context, tx *gorm.DB, click *types.CampaignClick) (*types.CampaignClick, error)
	GetByWindow(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]*types.CampaignClick, error)
}

type campaignClickRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCampaignClickRepo(db *gorm.DB, baseLog *logger.Logger) CampaignClickRepo {
	repoLog := baseLog.With("repo", "CampaignClickRepo")
	return &campaignClickRepo{db: db, log: repoLog}
}

func (r *campaignClickRepo) Create(ctx context.Context, tx *gorm.DB, click *types.CampaignClick) (*types.CampaignClick, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(click).Error; err != nil {
		return nil, err
	}
	return click, nil
}

func (r *campaignClickRepo) GetByWindow(ctx context.Context, tx *gorm.DB, from, to time.Time) ([]*types.CampaignClick, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CampaignClick
	if err := transaction.WithContext(ctx).
		Where("clicked_at >= ? AND clicked_at < ?", from, to).
		Order("clicked_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
