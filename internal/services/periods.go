package services

import (
	"math"
	"time"
)

// Reporting period presets. Unrecognized values fall back to 30 days rather
// than erroring, so a stale dashboard link still renders. The longest window
// is capped at the 1 year preset.
const defaultPeriodDays = 30

func periodDays(period string) int {
	switch period {
	case "7days":
		return 7
	case "30days":
		return 30
	case "90days":
		return 90
	case "1year":
		return 365
	default:
		return defaultPeriodDays
	}
}

// periodWindow returns the half-open [from, to) trailing window ending now.
func periodWindow(period string, now time.Time) (time.Time, time.Time) {
	to := now
	from := to.AddDate(0, 0, -periodDays(period))
	return from, to
}

// dayKey buckets a timestamp into a calendar day in the reporting location.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// rate returns part/total*100, 0 when total is 0.
func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}
