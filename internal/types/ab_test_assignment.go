package types

import (
	"time"

	"github.com/google/uuid"
)

// AbTestAssignment records which variant a subject was exposed to. The
// (test_id, subject_id) pair is unique; concurrent duplicate writers rely on
// the index, the loser reads back the winner's row.
type AbTestAssignment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TestID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ab_assignment_test_subject,priority:1" json:"test_id"`
	Test       *AbTest   `gorm:"constraint:OnDelete:CASCADE;foreignKey:TestID;references:ID" json:"test,omitempty"`
	SubjectID  string    `gorm:"not null;uniqueIndex:idx_ab_assignment_test_subject,priority:2" json:"subject_id"`
	Variant    string    `gorm:"not null" json:"variant"`
	AssignedAt time.Time `gorm:"not null" json:"assigned_at"`
}

func (AbTestAssignment) TableName() string { return "ab_test_assignment" }
