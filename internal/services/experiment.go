package services

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/repos"
	"github.com/homehero/pulse/internal/types"
)

type VariantStats struct {
	Assignments    int64   `json:"assignments"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

type AbTestResults struct {
	Test           *types.AbTest           `json:"test"`
	VariantStats   map[string]VariantStats `json:"variant_stats"`
	Overall        VariantStats            `json:"overall"`
	LeadingVariant string                  `json:"leading_variant,omitempty"`
	StillActive    bool                    `json:"still_active"`
}

// ExperimentService manages test definitions, deterministic assignment and
// result rollups. Lifecycle and result operations take a test reference,
// either the uuid or the key.
type ExperimentService interface {
	CreateTest(ctx context.Context, key, name string, variants []string) (*types.AbTest, error)
	StartTest(ctx context.Context, testRef string) (*types.AbTest, error)
	EndTest(ctx context.Context, testRef string) (*types.AbTest, error)
	GetVariant(ctx context.Context, testKey, subjectID string) (string, error)
	TrackConversion(ctx context.Context, testKey, subjectID, conversionKey string, value *float64) error
	GetTestResults(ctx context.Context, testRef string) (*AbTestResults, error)
}

type experimentService struct {
	db             *gorm.DB
	log            *logger.Logger
	testRepo       repos.AbTestRepo
	assignmentRepo repos.AbTestAssignmentRepo
	conversionRepo repos.AbTestConversionRepo
	eventRepo      repos.EventRepo
}

func NewExperimentService(db *gorm.DB, baseLog *logger.Logger, testRepo repos.AbTestRepo, assignmentRepo repos.AbTestAssignmentRepo, conversionRepo repos.AbTestConversionRepo, eventRepo repos.EventRepo) ExperimentService {
	return &experimentService{
		db:             db,
		log:            baseLog.With("service", "ExperimentService"),
		testRepo:       testRepo,
		assignmentRepo: assignmentRepo,
		conversionRepo: conversionRepo,
		eventRepo:      eventRepo,
	}
}

// CreateTest is get-or-create on the key: a duplicate key returns the
// existing definition untouched, so collaborators can declare tests
// idempotently at boot.
func (s *experimentService) CreateTest(ctx context.Context, key, name string, variants []string) (*types.AbTest, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, newValidationError("key", "required")
	}

	cleaned := make([]string, 0, len(variants))
	seen := map[string]bool{}
	for _, variant := range variants {
		variant = strings.TrimSpace(variant)
		if variant == "" {
			return nil, newValidationError("variants", "empty variant label")
		}
		if seen[variant] {
			return nil, newValidationError("variants", fmt.Sprintf("duplicate variant %q", variant))
		}
		seen[variant] = true
		cleaned = append(cleaned, variant)
	}
	if len(cleaned) < 2 {
		return nil, newValidationError("variants", "at least 2 variants required")
	}

	existing, err := s.testRepo.GetByKey(ctx, nil, key)
	if err != nil {
		return nil, fmt.Errorf("lookup test: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	raw, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("encode variants: %w", err)
	}
	now := time.Now().UTC()
	test := &types.AbTest{
		ID:        uuid.New(),
		Key:       key,
		Name:      strings.TrimSpace(name),
		Variants:  datatypes.JSON(raw),
		Status:    types.AbTestStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.testRepo.Create(ctx, nil, test)
	if err != nil {
		// Lost a concurrent create on the unique key: read the winner back.
		winner, lookupErr := s.testRepo.GetByKey(ctx, nil, key)
		if lookupErr == nil && winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("create test: %w", err)
	}
	s.log.Info("ab test created", "key", key, "variants", cleaned)
	return created, nil
}

// resolveTest accepts a uuid or a key. Both forms show up in dashboards, so
// both work everywhere a single test is addressed.
func (s *experimentService) resolveTest(ctx context.Context, testRef string) (*types.AbTest, error) {
	if id, parseErr := uuid.Parse(testRef); parseErr == nil {
		test, err := s.testRepo.GetByID(ctx, nil, id)
		if err != nil {
			return nil, fmt.Errorf("lookup test: %w", err)
		}
		if test != nil {
			return test, nil
		}
	}
	test, err := s.testRepo.GetByKey(ctx, nil, testRef)
	if err != nil {
		return nil, fmt.Errorf("lookup test: %w", err)
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	return test, nil
}

func (s *experimentService) StartTest(ctx context.Context, testRef string) (*types.AbTest, error) {
	test, err := s.resolveTest(ctx, testRef)
	if err != nil {
		return nil, err
	}
	if test.Status != types.AbTestStatusDraft {
		return nil, fmt.Errorf("%w: cannot start test in status %q", ErrPolicyViolation, test.Status)
	}
	now := time.Now().UTC()
	if err := s.testRepo.UpdateStatus(ctx, nil, test.ID, types.AbTestStatusActive, &now, nil); err != nil {
		return nil, fmt.Errorf("start test: %w", err)
	}
	s.log.Info("ab test started", "key", test.Key)
	return s.testRepo.GetByID(ctx, nil, test.ID)
}

func (s *experimentService) EndTest(ctx context.Context, testRef string) (*types.AbTest, error) {
	test, err := s.resolveTest(ctx, testRef)
	if err != nil {
		return nil, err
	}
	if test.Status != types.AbTestStatusActive {
		return nil, fmt.Errorf("%w: cannot end test in status %q", ErrPolicyViolation, test.Status)
	}
	now := time.Now().UTC()
	if err := s.testRepo.UpdateStatus(ctx, nil, test.ID, types.AbTestStatusEnded, nil, &now); err != nil {
		return nil, fmt.Errorf("end test: %w", err)
	}
	s.log.Info("ab test ended", "key", test.Key)
	return s.testRepo.GetByID(ctx, nil, test.ID)
}

// GetVariant buckets deterministically: the same (test, subject) pair always
// lands on the same variant without a lookup. The assignment is still
// persisted on first exposure, for audit and for conversion attribution.
// Draft and ended tests return the first variant and persist nothing, so the
// surrounding UI never breaks across lifecycle transitions.
func (s *experimentService) GetVariant(ctx context.Context, testKey, subjectID string) (string, error) {
	test, err := s.testRepo.GetByKey(ctx, nil, testKey)
	if err != nil {
		return "", fmt.Errorf("lookup test: %w", err)
	}
	if test == nil {
		return "", ErrTestNotFound
	}

	variants := test.VariantList()
	if len(variants) == 0 {
		return "", fmt.Errorf("test %q has no variants", testKey)
	}
	if test.Status != types.AbTestStatusActive {
		return variants[0], nil
	}

	variant := variants[bucketIndex(testKey, subjectID, len(variants))]

	now := time.Now().UTC()
	inserted, err := s.assignmentRepo.CreateIgnoreDuplicates(ctx, nil, &types.AbTestAssignment{
		ID:         uuid.New(),
		TestID:     test.ID,
		SubjectID:  subjectID,
		Variant:    variant,
		AssignedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("persist assignment: %w", err)
	}
	if !inserted {
		// Concurrent first exposure: the winner's row is authoritative.
		existing, err := s.assignmentRepo.Get(ctx, nil, test.ID, subjectID)
		if err != nil {
			return "", fmt.Errorf("read assignment: %w", err)
		}
		if existing != nil {
			return existing.Variant, nil
		}
		return variant, nil
	}

	s.recordEvent(ctx, types.EventAbAssignment, subjectID, now, map[string]any{
		"test_key": testKey,
		"variant":  variant,
	})
	return variant, nil
}

// TrackConversion is a no-op for subjects that were never exposed and for
// inactive tests; repeats on the same goal key collapse into the first row.
func (s *experimentService) TrackConversion(ctx context.Context, testKey, subjectID, conversionKey string, value *float64) error {
	if conversionKey == "" {
		return newValidationError("conversion_key", "required")
	}

	test, err := s.testRepo.GetByKey(ctx, nil, testKey)
	if err != nil {
		return fmt.Errorf("lookup test: %w", err)
	}
	if test == nil {
		return ErrTestNotFound
	}
	if test.Status != types.AbTestStatusActive {
		return nil
	}

	assignment, err := s.assignmentRepo.Get(ctx, nil, test.ID, subjectID)
	if err != nil {
		return fmt.Errorf("lookup assignment: %w", err)
	}
	if assignment == nil {
		return nil
	}

	now := time.Now().UTC()
	inserted, err := s.conversionRepo.CreateIgnoreDuplicates(ctx, nil, &types.AbTestConversion{
		ID:            uuid.New(),
		TestID:        test.ID,
		SubjectID:     subjectID,
		ConversionKey: conversionKey,
		Value:         value,
		ConvertedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("persist conversion: %w", err)
	}
	if inserted {
		s.recordEvent(ctx, types.EventAbConversion, subjectID, now, map[string]any{
			"test_key": testKey,
			"goal":     conversionKey,
		})
	}
	return nil
}

func (s *experimentService) GetTestResults(ctx context.Context, testRef string) (*AbTestResults, error) {
	test, err := s.resolveTest(ctx, testRef)
	if err != nil {
		return nil, err
	}

	assignments, err := s.assignmentRepo.CountByVariant(ctx, nil, test.ID)
	if err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	conversions, err := s.conversionRepo.CountByVariant(ctx, nil, test.ID)
	if err != nil {
		return nil, fmt.Errorf("count conversions: %w", err)
	}

	assignmentsByVariant := map[string]int64{}
	for _, row := range assignments {
		assignmentsByVariant[row.Variant] = row.N
	}
	conversionsByVariant := map[string]int64{}
	for _, row := range conversions {
		conversionsByVariant[row.Variant] = row.N
	}

	results := &AbTestResults{
		Test:         test,
		VariantStats: map[string]VariantStats{},
		StillActive:  test.Status == types.AbTestStatusActive,
	}

	var best float64 = -1
	for _, variant := range test.VariantList() {
		stats := VariantStats{
			Assignments: assignmentsByVariant[variant],
			Conversions: conversionsByVariant[variant],
		}
		stats.ConversionRate = rate(stats.Conversions, stats.Assignments)
		results.VariantStats[variant] = stats

		results.Overall.Assignments += stats.Assignments
		results.Overall.Conversions += stats.Conversions

		if stats.Assignments > 0 && stats.ConversionRate > best {
			best = stats.ConversionRate
			results.LeadingVariant = variant
		}
	}
	results.Overall.ConversionRate = rate(results.Overall.Conversions, results.Overall.Assignments)

	return results, nil
}

// recordEvent appends an audit event; failures only log since the durable
// assignment/conversion row already exists.
func (s *experimentService) recordEvent(ctx context.Context, eventType, subjectID string, at time.Time, metadata map[string]any) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return
	}
	_, err = s.eventRepo.Create(ctx, nil, []*types.Event{{
		ID:         uuid.New(),
		Type:       eventType,
		SubjectID:  subjectID,
		OccurredAt: at,
		Metadata:   datatypes.JSON(raw),
		CreatedAt:  at,
	}})
	if err != nil {
		s.log.Warn("experiment audit event failed", "type", eventType, "error", err)
	}
}

// bucketIndex maps (testKey, subjectID) onto a variant slot with FNV-1a.
// Stable across instances and restarts, which is what keeps deterministic
// assignment honest when the service scales horizontally.
func bucketIndex(testKey, subjectID string, numVariants int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(testKey))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(subjectID))
	return int(h.Sum32() % uint32(numVariants))
}
