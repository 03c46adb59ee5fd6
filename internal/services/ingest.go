package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/repos"
	"github.com/homehero/pulse/internal/requestdata"
	"github.com/homehero/pulse/internal/types"
)

const (
	maxBatchSize   = 200
	ingestAttempts = 3
	ingestBackoff  = 100 * time.Millisecond
)

var knownEventTypes = map[string]bool{
	types.EventProfileView:     true,
	types.EventTaskCreated:     true,
	types.EventOfferSent:       true,
	types.EventOfferAccepted:   true,
	types.EventTaskCompleted:   true,
	types.EventRevenueRecorded: true,
	types.EventCampaignClick:   true,
	types.EventAbAssignment:    true,
	types.EventAbConversion:    true,
}

type EventInput struct {
	Type       string         `json:"type"`
	ActorID    string         `json:"actor_id,omitempty"`
	SubjectID  string         `json:"subject_id,omitempty"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type IngestService interface {
	Record(ctx context.Context, tx *gorm.DB, input EventInput) (uuid.UUID, error)
	RecordBatch(ctx context.Context, tx *gorm.DB, inputs []EventInput) ([]uuid.UUID, error)
	TrackProfileView(ctx context.Context, viewedUserID, viewerKey, referrer string)
	Enqueue(input EventInput)
	StartWorker(ctx context.Context)
	PruneExpired(ctx context.Context, olderThan time.Duration) (int64, error)
	StartRetention(ctx context.Context, olderThan, every time.Duration)
}

type ingestService struct {
	db               *gorm.DB
	log              *logger.Logger
	eventRepo        repos.EventRepo
	campaignRepo     repos.CampaignClickRepo
	queue            chan EventInput
	workerStarted    bool
	retentionStarted bool
}

func NewIngestService(db *gorm.DB, baseLog *logger.Logger, eventRepo repos.EventRepo, campaignRepo repos.CampaignClickRepo, queueSize int) IngestService {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &ingestService{
		db:           db,
		log:          baseLog.With("service", "IngestService"),
		eventRepo:    eventRepo,
		campaignRepo: campaignRepo,
		queue:        make(chan EventInput, queueSize),
	}
}

func (s *ingestService) Record(ctx context.Context, tx *gorm.DB, input EventInput) (uuid.UUID, error) {
	ids, err := s.RecordBatch(ctx, tx, []EventInput{input})
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

func (s *ingestService) RecordBatch(ctx context.Context, tx *gorm.DB, inputs []EventInput) ([]uuid.UUID, error) {
	if len(inputs) == 0 {
		return []uuid.UUID{}, nil
	}
	if len(inputs) > maxBatchSize {
		return nil, newValidationError("batch", fmt.Sprintf("too many events (max %d)", maxBatchSize))
	}

	rd := requestdata.GetRequestData(ctx)
	now := time.Now().UTC()

	events := make([]*types.Event, 0, len(inputs))
	clicks := make([]*types.CampaignClick, 0)
	for i := range inputs {
		event, click, err := s.buildEvent(inputs[i], rd, now)
		if err != nil {
			return nil, fmt.Errorf("event at index %d: %w", i, err)
		}
		events = append(events, event)
		if click != nil {
			clicks = append(clicks, click)
		}
	}

	write := func() error {
		run := func(transaction *gorm.DB) error {
			if _, err := s.eventRepo.Create(ctx, transaction, events); err != nil {
				return err
			}
			for _, click := range clicks {
				if _, err := s.campaignRepo.Create(ctx, transaction, click); err != nil {
					return err
				}
			}
			return nil
		}
		if tx != nil {
			return run(tx)
		}
		return s.db.WithContext(ctx).Transaction(run)
	}

	// Inserts are independent rows, so a failed attempt is safe to retry.
	var err error
	backoff := ingestBackoff
	for attempt := 1; attempt <= ingestAttempts; attempt++ {
		if err = write(); err == nil {
			break
		}
		if attempt == ingestAttempts {
			s.log.Error("event ingest failed", "attempts", attempt, "error", err)
			return nil, fmt.Errorf("event ingest: %w", err)
		}
		s.log.Warn("event ingest attempt failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	ids := make([]uuid.UUID, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	return ids, nil
}

// TrackProfileView is the fire-and-forget path used by UI handlers: it never
// blocks the request and never reports storage errors upstream.
func (s *ingestService) TrackProfileView(ctx context.Context, viewedUserID, viewerKey, referrer string) {
	metadata := map[string]any{}
	if referrer != "" {
		metadata["referrer"] = referrer
	}
	input := EventInput{
		Type:      types.EventProfileView,
		SubjectID: viewedUserID,
		Metadata:  metadata,
	}
	if viewerKey != "" {
		input.ActorID = viewerKey
	}
	s.Enqueue(input)
}

// Enqueue hands the event to the background drain without blocking. Events
// are dropped with a warning when the buffer is full; tracking traffic is
// lossy by contract, domain writes use Record instead.
func (s *ingestService) Enqueue(input EventInput) {
	select {
	case s.queue <- input:
	default:
		s.log.Warn("ingest queue full, dropping event", "type", input.Type)
	}
}

func (s *ingestService) StartWorker(ctx context.Context) {
	if s.workerStarted {
		return
	}
	s.workerStarted = true
	go func() {
		s.log.Info("ingest worker started", "queue_size", cap(s.queue))
		for {
			select {
			case <-ctx.Done():
				s.log.Info("ingest worker stopped")
				return
			case input := <-s.queue:
				if _, err := s.Record(ctx, nil, input); err != nil {
					s.log.Warn("background ingest failed", "type", input.Type, "error", err)
				}
			}
		}
	}()
}

// PruneExpired bulk-deletes events older than the retention horizon. This
// is the only delete path into the event table; everything else treats it
// as append-only.
func (s *ingestService) PruneExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	pruned, err := s.eventRepo.PruneBefore(ctx, nil, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	if pruned > 0 {
		s.log.Info("retention prune completed", "pruned", pruned, "cutoff", cutoff)
	}
	return pruned, nil
}

// StartRetention runs PruneExpired once at startup and then on every tick
// until ctx is cancelled.
func (s *ingestService) StartRetention(ctx context.Context, olderThan, every time.Duration) {
	if s.retentionStarted || olderThan <= 0 || every <= 0 {
		return
	}
	s.retentionStarted = true
	go func() {
		s.log.Info("retention sweeper started", "older_than", olderThan, "every", every)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			if _, err := s.PruneExpired(ctx, olderThan); err != nil {
				s.log.Warn("retention prune failed", "error", err)
			}
			select {
			case <-ctx.Done():
				s.log.Info("retention sweeper stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *ingestService) buildEvent(input EventInput, rd *requestdata.RequestData, now time.Time) (*types.Event, *types.CampaignClick, error) {
	typ := strings.TrimSpace(strings.ToLower(input.Type))
	if !knownEventTypes[typ] {
		return nil, nil, newValidationError("type", fmt.Sprintf("unknown event type %q", input.Type))
	}

	if err := validateMetadata(typ, input.Metadata); err != nil {
		return nil, nil, err
	}

	occurred := now
	if input.OccurredAt != nil && !input.OccurredAt.IsZero() {
		occurred = input.OccurredAt.UTC()
	}

	subjectID := strings.TrimSpace(input.SubjectID)
	if subjectID == "" {
		subjectID = rd.SubjectKey()
	}
	if subjectID == "" {
		return nil, nil, newValidationError("subject_id", "missing subject and no request identity")
	}

	var actorID *string
	if v := strings.TrimSpace(input.ActorID); v != "" {
		actorID = &v
	} else if rd != nil && rd.ActorID != "" {
		v := rd.ActorID
		actorID = &v
	} else if rd != nil && rd.SessionID != "" {
		v := rd.SessionID
		actorID = &v
	}

	var raw datatypes.JSON
	if len(input.Metadata) > 0 {
		b, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, nil, newValidationError("metadata", "not serializable")
		}
		raw = datatypes.JSON(b)
	}

	event := &types.Event{
		ID:         uuid.New(),
		Type:       typ,
		ActorID:    actorID,
		SubjectID:  subjectID,
		OccurredAt: occurred,
		Metadata:   raw,
		CreatedAt:  now,
	}

	var click *types.CampaignClick
	if typ == types.EventCampaignClick {
		click = &types.CampaignClick{
			ID:          uuid.New(),
			SessionID:   subjectID,
			UTMSource:   metadataString(input.Metadata, "utm_source"),
			UTMMedium:   metadataString(input.Metadata, "utm_medium"),
			UTMCampaign: metadataString(input.Metadata, "utm_campaign"),
			ClickedAt:   occurred,
		}
	}
	return event, click, nil
}

// validateMetadata enforces the per-type schema. Extra keys are allowed;
// missing or mistyped required keys are not.
func validateMetadata(typ string, metadata map[string]any) error {
	switch typ {
	case types.EventRevenueRecorded:
		amount, ok := metadataNumber(metadata, "amount")
		if !ok {
			return newValidationError("metadata.amount", "required number")
		}
		if amount <= 0 {
			return newValidationError("metadata.amount", "must be positive")
		}
		currency := metadataString(metadata, "currency")
		if len(currency) != 3 {
			return newValidationError("metadata.currency", "required 3-letter code")
		}
	case types.EventCampaignClick:
		for _, key := range []string{"utm_source", "utm_medium", "utm_campaign"} {
			if metadataString(metadata, key) == "" {
				return newValidationError("metadata."+key, "required")
			}
		}
	case types.EventAbAssignment:
		if metadataString(metadata, "test_key") == "" {
			return newValidationError("metadata.test_key", "required")
		}
		if metadataString(metadata, "variant") == "" {
			return newValidationError("metadata.variant", "required")
		}
	case types.EventAbConversion:
		if metadataString(metadata, "test_key") == "" {
			return newValidationError("metadata.test_key", "required")
		}
		if metadataString(metadata, "goal") == "" {
			return newValidationError("metadata.goal", "required")
		}
	}
	return nil
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func metadataNumber(metadata map[string]any, key string) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
