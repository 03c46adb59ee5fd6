package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/types"
)

type EventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, events []*types.Event) ([]*types.Event, error)
	GetBySubjectAndWindow(ctx context.Context, tx *gorm.DB, subjectID string, from, to time.Time) ([]*types.Event, error)
	GetByTypeAndWindow(ctx context.Context, tx *gorm.DB, eventType, subjectID string, from, to time.Time) ([]*types.Event, error)
	GetBySessionsAndTypes(ctx context.Context, tx *gorm.DB, sessions, eventTypes []string, from, to time.Time) ([]*types.Event, error)
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	repoLog := baseLog.With("repo", "EventRepo")
	return &eventRepo{db: db, log: repoLog}
}

func (r *eventRepo) Create(ctx context.Context, tx *gorm.DB, events []*types.Event) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(events) == 0 {
		return []*types.Event{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepo) GetBySubjectAndWindow(ctx context.Context, tx *gorm.DB, subjectID string, from, to time.Time) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Event
	if subjectID == "" {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("subject_id = ? AND occurred_at >= ? AND occurred_at < ?", subjectID, from, to).
		Order("occurred_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetByTypeAndWindow scopes to a subject when subjectID is non-empty,
// otherwise reads globally.
func (r *eventRepo) GetByTypeAndWindow(ctx context.Context, tx *gorm.DB, eventType, subjectID string, from, to time.Time) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Event
	query := transaction.WithContext(ctx).
		Where("type = ? AND occurred_at >= ? AND occurred_at < ?", eventType, from, to)
	if subjectID != "" {
		query = query.Where("subject_id = ?", subjectID)
	}
	if err := query.
		Order("occurred_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *eventRepo) GetBySessionsAndTypes(ctx context.Context, tx *gorm.DB, sessions, eventTypes []string, from, to time.Time) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Event
	if len(sessions) == 0 || len(eventTypes) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("type IN ? AND occurred_at >= ? AND occurred_at < ?", eventTypes, from, to).
		Where("subject_id IN ? OR actor_id IN ?", sessions, sessions).
		Order("occurred_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// PruneBefore is the only delete path into the event table (retention).
func (r *eventRepo) PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&types.Event{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
