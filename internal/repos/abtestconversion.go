package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/types"
)

type AbTestConversionRepo interface {
	CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, conversion *types.AbTestConversion) (bool, error)
	CountByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int64, error)
	CountByVariant(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]VariantCount, error)
}

type abTestConversionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAbTestConversionRepo(db *gorm.DB, baseLog *logger.Logger) AbTestConversionRepo {
	repoLog := baseLog.With("repo", "AbTestConversionRepo")
	return &abTestConversionRepo{db: db, log: repoLog}
}

// CreateIgnoreDuplicates inserts the conversion unless the
// (test_id, subject_id, conversion_key) triple already exists. Repeated goal
// completions therefore never double count.
func (r *abTestConversionRepo) CreateIgnoreDuplicates(ctx context.Context, tx *gorm.DB, conversion *types.AbTestConversion) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "test_id"}, {Name: "subject_id"}, {Name: "conversion_key"}},
			DoNothing: true,
		}).
		Create(conversion)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *abTestConversionRepo) CountByTest(ctx context.Context, tx *gorm.DB, testID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var n int64
	if err := transaction.WithContext(ctx).
		Model(&types.AbTestConversion{}).
		Where("test_id = ?", testID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// CountByVariant joins conversions to their assignment rows so each
// conversion lands under the variant its subject was exposed to.
func (r *abTestConversionRepo) CountByVariant(ctx context.Context, tx *gorm.DB, testID uuid.UUID) ([]VariantCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []VariantCount
	if err := transaction.WithContext(ctx).
		Table("ab_test_conversion AS c").
		Select("a.variant AS variant, COUNT(*) AS n").
		Joins("JOIN ab_test_assignment AS a ON a.test_id = c.test_id AND a.subject_id = c.subject_id").
		Where("c.test_id = ?", testID).
		Group("a.variant").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
