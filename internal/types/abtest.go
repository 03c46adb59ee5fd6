package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	AbTestStatusDraft  = "draft"
	AbTestStatusActive = "active"
	AbTestStatusEnded  = "ended"
)

// AbTest is an experiment definition. Variants are stored as an ordered JSON
// array and are immutable once any assignment exists. Status only moves
// forward: draft -> active -> ended.
type AbTest struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string         `gorm:"not null;uniqueIndex" json:"key"`
	Name      string         `gorm:"not null" json:"name"`
	Variants  datatypes.JSON `gorm:"type:jsonb;not null" json:"variants"`
	Status    string         `gorm:"not null;index" json:"status"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (AbTest) TableName() string { return "ab_test" }

// VariantList decodes the stored variant array in definition order.
func (t *AbTest) VariantList() []string {
	var variants []string
	if err := json.Unmarshal(t.Variants, &variants); err != nil {
		return nil
	}
	return variants
}
