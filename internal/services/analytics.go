package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/observability"
	"github.com/homehero/pulse/internal/repos"
	"github.com/homehero/pulse/internal/types"
)

const topReferrerLimit = 10

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ProfileViewStats struct {
	Total         int        `json:"total"`
	UniqueViewers int        `json:"unique_viewers"`
	ByDay         []DayCount `json:"by_day"`
}

type OfferStats struct {
	Total          int     `json:"total"`
	Accepted       int     `json:"accepted"`
	ConversionRate float64 `json:"conversion_rate"`
}

type TaskStats struct {
	Completed int `json:"completed"`
}

type RevenueStats struct {
	Total          float64 `json:"total"`
	AveragePerTask float64 `json:"average_per_task"`
}

type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
}

type BusinessAnalytics struct {
	SubjectID    string           `json:"subject_id"`
	Period       string           `json:"period"`
	ProfileViews ProfileViewStats `json:"profile_views"`
	Offers       OfferStats       `json:"offers"`
	Tasks        TaskStats        `json:"tasks"`
	Revenue      RevenueStats     `json:"revenue"`
	TopReferrers []ReferrerCount  `json:"top_referrers"`
	ComputedAt   time.Time        `json:"computed_at"`
}

type AnalyticsService interface {
	GetBusinessAnalytics(ctx context.Context, subjectID, period string) (*BusinessAnalytics, error)
}

type analyticsService struct {
	db        *gorm.DB
	log       *logger.Logger
	eventRepo repos.EventRepo
	cache     ResultCache
	cacheTTL  time.Duration
	loc       *time.Location
}

func NewAnalyticsService(db *gorm.DB, baseLog *logger.Logger, eventRepo repos.EventRepo, cache ResultCache, cacheTTL time.Duration, loc *time.Location) AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &analyticsService{
		db:        db,
		log:       baseLog.With("service", "AnalyticsService"),
		eventRepo: eventRepo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		loc:       loc,
	}
}

// GetBusinessAnalytics aggregates a subject's events over a trailing window.
// A subject with no events gets zero-filled counters and empty arrays, never
// an error: dashboards render an empty state, not an error screen.
func (s *analyticsService) GetBusinessAnalytics(ctx context.Context, subjectID, period string) (*BusinessAnalytics, error) {
	cacheKey := fmt.Sprintf("analytics:business:%s:%s", subjectID, period)
	if s.cache != nil {
		var cached BusinessAnalytics
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			s.log.Warn("analytics cache read failed", "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	now := time.Now().UTC()
	from, to := periodWindow(period, now)

	// The window-bounded event scan is the expensive part of this call.
	ctx, span := observability.Tracer().Start(ctx, "analytics.aggregate", trace.WithAttributes(
		attribute.String("subject_id", subjectID),
		attribute.String("period", period),
	))
	defer span.End()

	events, err := s.eventRepo.GetBySubjectAndWindow(ctx, nil, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	span.SetAttributes(attribute.Int("event_count", len(events)))

	result := s.aggregate(subjectID, period, from, to, now, events)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
			s.log.Warn("analytics cache write failed", "error", err)
		}
	}
	return result, nil
}

func (s *analyticsService) aggregate(subjectID, period string, from, to, now time.Time, events []*types.Event) *BusinessAnalytics {
	viewsByDay := map[string]int{}
	uniqueViewers := map[string]bool{}
	referrers := map[string]int{}

	result := &BusinessAnalytics{
		SubjectID:    subjectID,
		Period:       period,
		TopReferrers: []ReferrerCount{},
		ComputedAt:   now,
	}

	for _, event := range events {
		switch event.Type {
		case types.EventProfileView:
			result.ProfileViews.Total++
			viewsByDay[dayKey(event.OccurredAt, s.loc)]++
			if event.ActorID != nil && *event.ActorID != "" {
				uniqueViewers[*event.ActorID] = true
			}
			if ref := eventMetadataString(event, "referrer"); ref != "" {
				referrers[ref]++
			}
		case types.EventOfferSent:
			result.Offers.Total++
		case types.EventOfferAccepted:
			result.Offers.Accepted++
		case types.EventTaskCompleted:
			result.Tasks.Completed++
		case types.EventRevenueRecorded:
			if amount, ok := eventMetadataNumber(event, "amount"); ok {
				result.Revenue.Total += amount
			}
		}
	}

	result.ProfileViews.UniqueViewers = len(uniqueViewers)
	result.ProfileViews.ByDay = fillDays(from, to, s.loc, viewsByDay)

	result.Offers.ConversionRate = rate(int64(result.Offers.Accepted), int64(result.Offers.Total))
	result.Revenue.Total = round2(result.Revenue.Total)
	if result.Tasks.Completed > 0 {
		result.Revenue.AveragePerTask = round2(result.Revenue.Total / float64(result.Tasks.Completed))
	}

	for referrer, count := range referrers {
		result.TopReferrers = append(result.TopReferrers, ReferrerCount{Referrer: referrer, Count: count})
	}
	sort.Slice(result.TopReferrers, func(i, j int) bool {
		if result.TopReferrers[i].Count != result.TopReferrers[j].Count {
			return result.TopReferrers[i].Count > result.TopReferrers[j].Count
		}
		return result.TopReferrers[i].Referrer < result.TopReferrers[j].Referrer
	})
	if len(result.TopReferrers) > topReferrerLimit {
		result.TopReferrers = result.TopReferrers[:topReferrerLimit]
	}

	return result
}

// fillDays produces one bucket per calendar day of the window, zero-filled,
// so chart consumers get a continuous series.
func fillDays(from, to time.Time, loc *time.Location, counts map[string]int) []DayCount {
	days := []DayCount{}
	cursor := from.In(loc)
	cursor = time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc)
	end := to.In(loc)
	for !cursor.After(end) {
		key := cursor.Format("2006-01-02")
		days = append(days, DayCount{Date: key, Count: counts[key]})
		cursor = cursor.AddDate(0, 0, 1)
	}
	return days
}

func eventMetadataString(event *types.Event, key string) string {
	if len(event.Metadata) == 0 {
		return ""
	}
	var metadata map[string]any
	if err := json.Unmarshal(event.Metadata, &metadata); err != nil {
		return ""
	}
	return metadataString(metadata, key)
}

func eventMetadataNumber(event *types.Event, key string) (float64, bool) {
	if len(event.Metadata) == 0 {
		return 0, false
	}
	var metadata map[string]any
	if err := json.Unmarshal(event.Metadata, &metadata); err != nil {
		return 0, false
	}
	return metadataNumber(metadata, key)
}
