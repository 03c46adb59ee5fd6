package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodDays(t *testing.T) {
	cases := map[string]int{
		"7days":   7,
		"30days":  30,
		"90days":  90,
		"1year":   365,
		"":        30,
		"bogus":   30,
		"14 days": 30,
	}
	for period, want := range cases {
		assert.Equalf(t, want, periodDays(period), "period %q", period)
	}
}

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	from, to := periodWindow("7days", now)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -7), from)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0.0, rate(0, 0))
	assert.Equal(t, 0.0, rate(5, 0))
	assert.Equal(t, 50.0, rate(1, 2))
	assert.Equal(t, 33.33, rate(1, 3))
	assert.Equal(t, 100.0, rate(3, 3))
}
