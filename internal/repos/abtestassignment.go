package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/types"
)

// VariantCount is a per-variant tally row used by test result queries.
type VariantCount struct {
	Variant string
	N       int64
}

type AbTestAssignmentRepo interface {
	CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, assignment *types.AbTestAssignment) (bool, error)
	Get(ctx context.Context, tx *gorm.DB, testID uuid.UUID, subjectID string) (*types.AbTestAssignment, error)
	CountByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int64, error)
	CountByVariant(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]VariantCount, error)
}

type abTestAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAbTestAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) AbTestAssignmentRepo {
	repoLog := baseLog.With("repo", "AbTestAssignmentRepo")
	return &abTestAssignmentRepo{db: db, log: repoLog}
}

// CreateIgnoreDuplicates inserts the assignment unless the
// (test_id, subject_id) pair already exists. Returns whether a row was
// actually written, so a losing concurrent writer can read back the winner.
func (r *abTestAssignmentRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, assignment *types.AbTestAssignment) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "test_id"}, {Name: "subject_id"}},
			DoNothing: true,
		}).
		Create(assignment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *abTestAssignmentRepo) Get(ctx context.Context, tx *gorm.DB, testID uuid.UUID, subjectID string) (*types.AbTestAssignment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.AbTestAssignment
	err := transaction.WithContext(ctx).
		Where("test_id = ? AND subject_id = ?", testID, subjectID).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *abTestAssignmentRepo) CountByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.AbTestAssignment{}).
		Where("test_id = ?", testID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *abTestAssignmentRepo) CountByVariant(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]VariantCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []VariantCount
	if err := transaction.WithContext(ctx).
		Model(&types.AbTestAssignment{}).
		Select("variant, COUNT(*) AS n").
		Where("test_id = ?", testID).
		Group("variant").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
