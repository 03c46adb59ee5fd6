package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event type enum. Each type carries its own metadata schema, validated at
// the ingestion boundary (see services.IngestService).
const (
	EventProfileView     = "profile_view"
	EventTaskCreated     = "task_created"
	EventOfferSent       = "offer_sent"
	EventOfferAccepted   = "offer_accepted"
	EventTaskCompleted   = "task_completed"
	EventRevenueRecorded = "revenue_recorded"
	EventCampaignClick   = "campaign_click"
	EventAbAssignment    = "ab_assignment"
	EventAbConversion    = "ab_conversion"
)

// Event is an immutable business fact. Rows are append-only: nothing updates
// or deletes them except bulk retention pruning. Within a subject, ordering
// is (occurred_at, id).
type Event struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type       string         `gorm:"not null;index" json:"type"`
	ActorID    *string        `gorm:"index" json:"actor_id,omitempty"`
	SubjectID  string         `gorm:"not null;index:idx_event_subject_occurred,priority:1" json:"subject_id"`
	OccurredAt time.Time      `gorm:"not null;index:idx_event_subject_occurred,priority:2" json:"occurred_at"`
	Metadata   datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "analytics_event" }
