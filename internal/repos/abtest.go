package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/types"
)

type AbTestRepo interface {
	Create(ctx context.Context, tx *gorm.DB, test *types.AbTest) (*types.AbTest, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AbTest, error)
	GetByKey(ctx context.Context, tx *gorm.DB, key string) (*types.AbTest, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, startedAt, endedAt *time.Time) error
}

type abTestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAbTestRepo(db *gorm.DB, baseLog *logger.Logger) AbTestRepo {
	repoLog := baseLog.With("repo", "AbTestRepo")
	return &abTestRepo{db: db, log: repoLog}
}

func (r *abTestRepo) Create(ctx context.Context, tx *gorm.DB, test *types.AbTest) (*types.AbTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(test).Error; err != nil {
		return nil, err
	}
	return test, nil
}

func (r *abTestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AbTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.AbTest
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *abTestRepo) GetByKey(ctx context.Context, tx *gorm.DB, key string) (*types.AbTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.AbTest
	err := transaction.WithContext(ctx).
		Where("key = ?", key).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *abTestRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, startedAt, endedAt *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if startedAt != nil {
		updates["started_at"] = *startedAt
	}
	if endedAt != nil {
		updates["ended_at"] = *endedAt
	}
	return transaction.WithContext(ctx).
		Model(&types.AbTest{}).
		Where("id = ?", id).
		Updates(updates).Error
}
