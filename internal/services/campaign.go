package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/repos"
	"github.com/homehero/pulse/internal/types"
)

// Events that count as a conversion for campaign attribution.
var conversionEventTypes = []string{
	types.EventOfferAccepted,
	types.EventTaskCompleted,
	types.EventRevenueRecorded,
	types.EventAbConversion,
}

type CampaignSummary struct {
	Campaign       string         `json:"campaign"`
	Clicks         int            `json:"clicks"`
	UniqueUsers    int            `json:"unique_users"`
	Conversions    int            `json:"conversions"`
	ConversionRate float64        `json:"conversion_rate"`
	Sources        map[string]int `json:"sources"`
}

type CampaignAnalytics struct {
	Period         string            `json:"period"`
	TotalClicks    int               `json:"total_clicks"`
	TotalCampaigns int               `json:"total_campaigns"`
	Campaigns      []CampaignSummary `json:"campaigns"`
	ComputedAt     time.Time         `json:"computed_at"`
}

type CampaignService interface {
	GetCampaignAnalytics(ctx context.Context, period string) (*CampaignAnalytics, error)
}

type campaignService struct {
	db                *gorm.DB
	log               *logger.Logger
	clickRepo         repos.CampaignClickRepo
	eventRepo         repos.EventRepo
	attributionWindow time.Duration
}

func NewCampaignService(db *gorm.DB, baseLog *logger.Logger, clickRepo repos.CampaignClickRepo, eventRepo repos.EventRepo, attributionWindow time.Duration) CampaignService {
	if attributionWindow <= 0 {
		attributionWindow = 30 * 24 * time.Hour
	}
	return &campaignService{
		db:                db,
		log:               baseLog.With("service", "CampaignService"),
		clickRepo:         clickRepo,
		eventRepo:         eventRepo,
		attributionWindow: attributionWindow,
	}
}

// GetCampaignAnalytics groups clicks by utm_campaign and credits a campaign
// when the same session emits a conversion event inside the attribution
// window. Zero-conversion campaigns stay in the report so under-performers
// remain visible.
func (s *campaignService) GetCampaignAnalytics(ctx context.Context, period string) (*CampaignAnalytics, error) {
	now := time.Now().UTC()
	from, to := periodWindow(period, now)

	clicks, err := s.clickRepo.GetByWindow(ctx, nil, from, to)
	if err != nil {
		return nil, fmt.Errorf("load clicks: %w", err)
	}

	result := &CampaignAnalytics{
		Period:     period,
		Campaigns:  []CampaignSummary{},
		ComputedAt: now,
	}
	if len(clicks) == 0 {
		return result, nil
	}

	type campaignAccum struct {
		clicks   int
		sessions map[string]time.Time // session -> earliest click
		sources  map[string]int
	}
	campaigns := map[string]*campaignAccum{}
	sessionSet := map[string]bool{}

	for _, click := range clicks {
		accum := campaigns[click.UTMCampaign]
		if accum == nil {
			accum = &campaignAccum{sessions: map[string]time.Time{}, sources: map[string]int{}}
			campaigns[click.UTMCampaign] = accum
		}
		accum.clicks++
		accum.sources[click.UTMSource]++
		if first, ok := accum.sessions[click.SessionID]; !ok || click.ClickedAt.Before(first) {
			accum.sessions[click.SessionID] = click.ClickedAt
		}
		sessionSet[click.SessionID] = true
		result.TotalClicks++
	}

	sessions := make([]string, 0, len(sessionSet))
	for session := range sessionSet {
		sessions = append(sessions, session)
	}

	// One read covers every campaign: conversion events for all clicking
	// sessions from the window start until now.
	conversionEvents, err := s.eventRepo.GetBySessionsAndTypes(ctx, nil, sessions, conversionEventTypes, from, now)
	if err != nil {
		return nil, fmt.Errorf("load conversion events: %w", err)
	}
	conversionsBySession := map[string][]time.Time{}
	for _, event := range conversionEvents {
		keys := []string{event.SubjectID}
		if event.ActorID != nil && *event.ActorID != event.SubjectID {
			keys = append(keys, *event.ActorID)
		}
		for _, key := range keys {
			if sessionSet[key] {
				conversionsBySession[key] = append(conversionsBySession[key], event.OccurredAt)
			}
		}
	}

	for name, accum := range campaigns {
		summary := CampaignSummary{
			Campaign:    name,
			Clicks:      accum.clicks,
			UniqueUsers: len(accum.sessions),
			Sources:     accum.sources,
		}
		for session, clickedAt := range accum.sessions {
			deadline := clickedAt.Add(s.attributionWindow)
			for _, at := range conversionsBySession[session] {
				if at.After(clickedAt) && !at.After(deadline) {
					summary.Conversions++
					break
				}
			}
		}
		summary.ConversionRate = rate(int64(summary.Conversions), int64(summary.Clicks))
		result.Campaigns = append(result.Campaigns, summary)
	}

	sort.Slice(result.Campaigns, func(i, j int) bool {
		if result.Campaigns[i].Clicks != result.Campaigns[j].Clicks {
			return result.Campaigns[i].Clicks > result.Campaigns[j].Clicks
		}
		return result.Campaigns[i].Campaign < result.Campaigns[j].Campaign
	})
	result.TotalCampaigns = len(result.Campaigns)

	return result, nil
}
