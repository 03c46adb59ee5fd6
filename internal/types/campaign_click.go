package types

import (
	"time"

	"github.com/google/uuid"
)

// CampaignClick is a UTM-tagged landing recorded alongside its
// campaign_click event. Later conversion events from the same session inside
// the attribution window are credited to the campaign.
type CampaignClick struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   string    `gorm:"not null;index" json:"session_id"`
	UTMSource   string    `gorm:"column:utm_source;not null" json:"utm_source"`
	UTMMedium   string    `gorm:"column:utm_medium;not null" json:"utm_medium"`
	UTMCampaign string    `gorm:"column:utm_campaign;not null;index" json:"utm_campaign"`
	ClickedAt   time.Time `gorm:"not null;index" json:"clicked_at"`
}

func (CampaignClick) TableName() string { return "campaign_click" }
