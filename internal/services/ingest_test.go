package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehero/pulse/internal/requestdata"
	"github.com/homehero/pulse/internal/types"
)

func newIngestService(e *testEnv) IngestService {
	return NewIngestService(e.db, e.log, e.eventRepo, e.clickRepo, 8)
}

func TestRecordUnknownType(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)

	_, err := svc.Record(context.Background(), nil, EventInput{
		Type:      "page_scrolled",
		SubjectID: "user-1",
	})
	assert.True(t, IsValidation(err))
}

func TestRecordNormalizesType(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)

	id, err := svc.Record(context.Background(), nil, EventInput{
		Type:      "  Profile_View ",
		SubjectID: "user-1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, int64(1), e.countEvents(t, types.EventProfileView))
}

func TestRecordRevenueValidation(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)
	ctx := context.Background()

	cases := []struct {
		name     string
		metadata map[string]any
	}{
		{name: "missing_amount", metadata: map[string]any{"currency": "USD"}},
		{name: "zero_amount", metadata: map[string]any{"amount": 0.0, "currency": "USD"}},
		{name: "negative_amount", metadata: map[string]any{"amount": -5.0, "currency": "USD"}},
		{name: "string_amount", metadata: map[string]any{"amount": "12", "currency": "USD"}},
		{name: "missing_currency", metadata: map[string]any{"amount": 12.0}},
		{name: "bad_currency", metadata: map[string]any{"amount": 12.0, "currency": "usdollar"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, nil, EventInput{
				Type:      types.EventRevenueRecorded,
				SubjectID: "provider-1",
				Metadata:  tc.metadata,
			})
			assert.True(t, IsValidation(err))
		})
	}

	_, err := svc.Record(ctx, nil, EventInput{
		Type:      types.EventRevenueRecorded,
		SubjectID: "provider-1",
		Metadata:  map[string]any{"amount": 99.5, "currency": "USD"},
	})
	require.NoError(t, err)
}

func TestRecordCampaignClickCreatesClickRow(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)
	ctx := context.Background()

	// Required UTM fields enforced.
	_, err := svc.Record(ctx, nil, EventInput{
		Type:      types.EventCampaignClick,
		SubjectID: "session-1",
		Metadata:  map[string]any{"utm_source": "google"},
	})
	assert.True(t, IsValidation(err))

	_, err = svc.Record(ctx, nil, EventInput{
		Type:      types.EventCampaignClick,
		SubjectID: "session-1",
		Metadata: map[string]any{
			"utm_source":   "google",
			"utm_medium":   "cpc",
			"utm_campaign": "spring_promo",
		},
	})
	require.NoError(t, err)

	// The event and its denormalized click row land together.
	assert.Equal(t, int64(1), e.countEvents(t, types.EventCampaignClick))
	var clicks []*types.CampaignClick
	require.NoError(t, e.db.Find(&clicks).Error)
	require.Len(t, clicks, 1)
	assert.Equal(t, "session-1", clicks[0].SessionID)
	assert.Equal(t, "spring_promo", clicks[0].UTMCampaign)
}

func TestRecordSubjectFallsBackToRequestIdentity(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)

	ctx := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		SessionID: "session-77",
	})
	_, err := svc.Record(ctx, nil, EventInput{Type: types.EventTaskCreated})
	require.NoError(t, err)

	var event types.Event
	require.NoError(t, e.db.Where("type = ?", types.EventTaskCreated).First(&event).Error)
	assert.Equal(t, "session-77", event.SubjectID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, "session-77", *event.ActorID)
}

func TestRecordMissingSubject(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)

	_, err := svc.Record(context.Background(), nil, EventInput{Type: types.EventTaskCreated})
	assert.True(t, IsValidation(err))
}

func TestRecordBatch(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)
	ctx := context.Background()

	inputs := make([]EventInput, 0, 5)
	for i := 0; i < 5; i++ {
		inputs = append(inputs, EventInput{Type: types.EventTaskCreated, SubjectID: "user-1"})
	}
	ids, err := svc.RecordBatch(ctx, nil, inputs)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
	assert.Equal(t, int64(5), e.countEvents(t, types.EventTaskCreated))
}

func TestRecordBatchAtomicOnInvalidEntry(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)

	inputs := []EventInput{
		{Type: types.EventTaskCreated, SubjectID: "user-1"},
		{Type: "bogus", SubjectID: "user-1"},
	}
	_, err := svc.RecordBatch(context.Background(), nil, inputs)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "index 1")

	// Nothing persisted from the batch.
	assert.Equal(t, int64(0), e.countEvents(t, types.EventTaskCreated))
}

func TestRecordBatchSizeCap(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)

	inputs := make([]EventInput, maxBatchSize+1)
	for i := range inputs {
		inputs[i] = EventInput{Type: types.EventTaskCreated, SubjectID: "user-1"}
	}
	_, err := svc.RecordBatch(context.Background(), nil, inputs)
	assert.True(t, IsValidation(err))
}

func TestBackgroundWorkerDrainsQueue(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartWorker(ctx)

	svc.TrackProfileView(ctx, "provider-1", "viewer-1", "google.com")
	svc.Enqueue(EventInput{Type: types.EventTaskCreated, SubjectID: "user-1"})

	assert.Eventually(t, func() bool {
		return e.countEvents(t, types.EventProfileView) == 1 &&
			e.countEvents(t, types.EventTaskCreated) == 1
	}, 3*time.Second, 20*time.Millisecond)

	var event types.Event
	require.NoError(t, e.db.Where("type = ?", types.EventProfileView).First(&event).Error)
	assert.Equal(t, "provider-1", event.SubjectID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, "viewer-1", *event.ActorID)
}

func TestPruneExpiredRespectsCutoff(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)
	ctx := context.Background()
	now := time.Now().UTC()

	e.insertEvent(t, types.EventTaskCreated, "", "user-1", now.AddDate(0, 0, -400), "")
	e.insertEvent(t, types.EventTaskCreated, "", "user-1", now.AddDate(0, 0, -100), "")
	e.insertEvent(t, types.EventTaskCreated, "", "user-1", now.Add(-time.Hour), "")

	pruned, err := svc.PruneExpired(ctx, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	assert.Equal(t, int64(2), e.countEvents(t, types.EventTaskCreated))

	// Nothing left past the horizon; a second sweep is a no-op.
	pruned, err = svc.PruneExpired(ctx, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pruned)

	// Zero retention never deletes.
	pruned, err = svc.PruneExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pruned)
	assert.Equal(t, int64(2), e.countEvents(t, types.EventTaskCreated))
}

func TestRetentionSweeperPrunes(t *testing.T) {
	e := newTestEnv(t)
	svc := newIngestService(e)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Now().UTC()

	e.insertEvent(t, types.EventTaskCreated, "", "user-1", now.AddDate(0, 0, -40), "")
	e.insertEvent(t, types.EventTaskCreated, "", "user-1", now.Add(-time.Hour), "")

	svc.StartRetention(ctx, 30*24*time.Hour, time.Hour)

	assert.Eventually(t, func() bool {
		return e.countEvents(t, types.EventTaskCreated) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	e := newTestEnv(t)
	// Worker never started, so the buffer fills and overflow drops.
	svc := NewIngestService(e.db, e.log, e.eventRepo, e.clickRepo, 2)

	for i := 0; i < 10; i++ {
		svc.Enqueue(EventInput{Type: types.EventTaskCreated, SubjectID: "user-1"})
	}
	// Nothing persisted and no deadlock.
	assert.Equal(t, int64(0), e.countEvents(t, types.EventTaskCreated))
}
