package types

import (
	"time"

	"github.com/google/uuid"
)

// AbTestConversion is a goal completion attributed to an assignment. The
// (test_id, subject_id, conversion_key) triple is unique so repeated
// conversions on the same goal never double count.
type AbTestConversion struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TestID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ab_conversion_test_subject_key,priority:1" json:"test_id"`
	Test          *AbTest   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TestID;references:ID" json:"test,omitempty"`
	SubjectID     string    `gorm:"not null;uniqueIndex:idx_ab_conversion_test_subject_key,priority:2" json:"subject_id"`
	ConversionKey string    `gorm:"not null;uniqueIndex:idx_ab_conversion_test_subject_key,priority:3" json:"conversion_key"`
	Value         *float64  `json:"value,omitempty"`
	ConvertedAt   time.Time `gorm:"not null" json:"converted_at"`
}

func (AbTestConversion) TableName() string { return "ab_test_conversion" }
