package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/observability"
	"github.com/homehero/pulse/internal/repos"
	"github.com/homehero/pulse/internal/types"
)

const (
	// Trend detection is unreliable on short windows, so anything under
	// minForecastDays of daily buckets returns the "not enough data" payload.
	minForecastDays = 90

	// Forecasting never reads further back than this.
	maxLookbackDays = 400

	defaultDaysAhead = 30
	maxDaysAhead     = 90

	TrendGrowing   = "growing"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

type ForecastPoint struct {
	Date           string  `json:"date"`
	PredictedCount float64 `json:"predicted_count"`
}

type DemandForecast struct {
	HistoricalData    []DayCount      `json:"historical_data"`
	Forecast          []ForecastPoint `json:"forecast"`
	Trend             string          `json:"trend"`
	Confidence        float64         `json:"confidence"`
	AverageDailyTasks float64         `json:"average_daily_tasks"`
	DaysAhead         int             `json:"days_ahead"`
	ComputedAt        time.Time       `json:"computed_at"`
}

type ForecastService interface {
	GetDemandForecast(ctx context.Context, subjectID string, daysAhead int) (*DemandForecast, error)
}

type forecastService struct {
	db             *gorm.DB
	log            *logger.Logger
	eventRepo      repos.EventRepo
	cache          ResultCache
	cacheTTL       time.Duration
	trendThreshold float64
	loc            *time.Location
}

// NewForecastService builds the demand forecaster. trendThreshold is the
// normalized weekly slope beyond which a series counts as growing or
// declining; the shipped default is 0.05 (5% of the series mean per week).
func NewForecastService(db *gorm.DB, baseLog *logger.Logger, eventRepo repos.EventRepo, cache ResultCache, cacheTTL time.Duration, trendThreshold float64, loc *time.Location) ForecastService {
	if trendThreshold <= 0 {
		trendThreshold = 0.05
	}
	if loc == nil {
		loc = time.UTC
	}
	return &forecastService{
		db:             db,
		log:            baseLog.With("service", "ForecastService"),
		eventRepo:      eventRepo,
		cache:          cache,
		cacheTTL:       cacheTTL,
		trendThreshold: trendThreshold,
		loc:            loc,
	}
}

// GetDemandForecast projects daily task-creation counts. subjectID scopes
// the series to one provider; empty means marketplace-wide.
func (s *forecastService) GetDemandForecast(ctx context.Context, subjectID string, daysAhead int) (*DemandForecast, error) {
	if daysAhead <= 0 {
		daysAhead = defaultDaysAhead
	}
	if daysAhead > maxDaysAhead {
		daysAhead = maxDaysAhead
	}

	cacheKey := fmt.Sprintf("analytics:forecast:%s:%d", subjectID, daysAhead)
	if s.cache != nil {
		var cached DemandForecast
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			s.log.Warn("forecast cache read failed", "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -maxLookbackDays)

	// The lookback-capped scan dominates this call's cost.
	ctx, span := observability.Tracer().Start(ctx, "forecast.series", trace.WithAttributes(
		attribute.String("subject_id", subjectID),
		attribute.Int("days_ahead", daysAhead),
	))
	defer span.End()

	events, err := s.eventRepo.GetByTypeAndWindow(ctx, nil, types.EventTaskCreated, subjectID, from, now)
	if err != nil {
		return nil, fmt.Errorf("load task events: %w", err)
	}
	span.SetAttributes(attribute.Int("event_count", len(events)))

	result := s.forecast(events, now, daysAhead)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
			s.log.Warn("forecast cache write failed", "error", err)
		}
	}
	return result, nil
}

func (s *forecastService) forecast(events []*types.Event, now time.Time, daysAhead int) *DemandForecast {
	result := &DemandForecast{
		HistoricalData: []DayCount{},
		Forecast:       []ForecastPoint{},
		DaysAhead:      daysAhead,
		ComputedAt:     now,
	}

	series := s.dailySeries(events, now)
	if len(series) < minForecastDays {
		return result
	}

	counts := make([]float64, len(series))
	var sum float64
	for i, day := range series {
		counts[i] = float64(day.Count)
		sum += counts[i]
	}
	mean := sum / float64(len(counts))

	slope, intercept, r2 := linearFit(counts)

	result.HistoricalData = series
	result.AverageDailyTasks = round2(mean)
	result.Confidence = round2(clamp(r2*100, 0, 100))
	result.Trend = s.classifyTrend(slope, mean)

	factors := weekdayFactors(series, s.loc, mean)
	n := len(counts)
	today := now.In(s.loc)
	for i := 1; i <= daysAhead; i++ {
		date := today.AddDate(0, 0, i)
		predicted := intercept + slope*float64(n-1+i)
		predicted *= factors[int(date.Weekday())]
		if predicted < 0 {
			predicted = 0
		}
		result.Forecast = append(result.Forecast, ForecastPoint{
			Date:           date.Format("2006-01-02"),
			PredictedCount: round2(predicted),
		})
	}
	return result
}

// dailySeries buckets task_created events per calendar day from the first
// observed day through today, zero-filling gaps so backdated batches still
// land in order.
func (s *forecastService) dailySeries(events []*types.Event, now time.Time) []DayCount {
	if len(events) == 0 {
		return []DayCount{}
	}

	counts := map[string]int{}
	for _, event := range events {
		counts[dayKey(event.OccurredAt, s.loc)]++
	}

	first := events[0].OccurredAt.In(s.loc)
	start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, s.loc)
	end := now.In(s.loc)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, s.loc)

	series := []DayCount{}
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, 1) {
		key := cursor.Format("2006-01-02")
		series = append(series, DayCount{Date: key, Count: counts[key]})
	}
	return series
}

func (s *forecastService) classifyTrend(slope, mean float64) string {
	if mean == 0 {
		return TrendStable
	}
	weekly := slope * 7 / mean
	switch {
	case weekly > s.trendThreshold:
		return TrendGrowing
	case weekly < -s.trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// linearFit runs a least-squares regression of y against x = 0..n-1 and
// returns slope, intercept and R². A zero-variance series fits its own flat
// line exactly, so R² is 1 there.
func linearFit(y []float64) (slope, intercept, r2 float64) {
	n := float64(len(y))
	if n < 2 {
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, v := range y {
		fit := intercept + slope*float64(i)
		ssRes += (v - fit) * (v - fit)
		ssTot += (v - meanY) * (v - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return slope, intercept, r2
}

// weekdayFactors computes the day-of-week seasonal adjustment: each
// weekday's historical mean over the overall mean. Weekdays without
// observations keep factor 1.
func weekdayFactors(series []DayCount, loc *time.Location, mean float64) [7]float64 {
	factors := [7]float64{1, 1, 1, 1, 1, 1, 1}
	if mean == 0 {
		return factors
	}

	var sums [7]float64
	var counts [7]int
	for _, day := range series {
		t, err := time.ParseInLocation("2006-01-02", day.Date, loc)
		if err != nil {
			continue
		}
		w := int(t.Weekday())
		sums[w] += float64(day.Count)
		counts[w]++
	}
	for w := 0; w < 7; w++ {
		if counts[w] > 0 {
			factors[w] = (sums[w] / float64(counts[w])) / mean
		}
	}
	return factors
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
