package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/repos"
	"github.com/homehero/pulse/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One shared in-memory database per test; the pool would otherwise hand
	// out fresh empty databases on new connections.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&types.Event{},
		&types.AbTest{},
		&types.AbTestAssignment{},
		&types.AbTestConversion{},
		&types.CampaignClick{},
	))
	return db
}

type testEnv struct {
	db             *gorm.DB
	log            *logger.Logger
	eventRepo      repos.EventRepo
	clickRepo      repos.CampaignClickRepo
	testRepo       repos.AbTestRepo
	assignmentRepo repos.AbTestAssignmentRepo
	conversionRepo repos.AbTestConversionRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewNop()
	return &testEnv{
		db:             db,
		log:            log,
		eventRepo:      repos.NewEventRepo(db, log),
		clickRepo:      repos.NewCampaignClickRepo(db, log),
		testRepo:       repos.NewAbTestRepo(db, log),
		assignmentRepo: repos.NewAbTestAssignmentRepo(db, log),
		conversionRepo: repos.NewAbTestConversionRepo(db, log),
	}
}

// insertEvent writes directly through the repo, bypassing ingestion
// validation, for tests that stage history.
func (e *testEnv) insertEvent(t *testing.T, eventType, actorID, subjectID string, occurredAt time.Time, metadata string) {
	t.Helper()
	event := &types.Event{
		ID:         uuid.New(),
		Type:       eventType,
		SubjectID:  subjectID,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if actorID != "" {
		event.ActorID = &actorID
	}
	if metadata != "" {
		event.Metadata = []byte(metadata)
	}
	_, err := e.eventRepo.Create(context.Background(), nil, []*types.Event{event})
	require.NoError(t, err)
}

func (e *testEnv) countEvents(t *testing.T, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&types.Event{}).Where("type = ?", eventType).Count(&n).Error)
	return n
}
