package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehero/pulse/internal/types"
)

func newExperimentService(e *testEnv) ExperimentService {
	return NewExperimentService(e.db, e.log, e.testRepo, e.assignmentRepo, e.conversionRepo, e.eventRepo)
}

func createActiveTest(t *testing.T, svc ExperimentService, key string, variants []string) *types.AbTest {
	t.Helper()
	ctx := context.Background()
	test, err := svc.CreateTest(ctx, key, key, variants)
	require.NoError(t, err)
	started, err := svc.StartTest(ctx, test.ID.String())
	require.NoError(t, err)
	return started
}

func TestCreateTestValidation(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()

	_, err := svc.CreateTest(ctx, "", "no key", []string{"a", "b"})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateTest(ctx, "one_variant", "", []string{"a"})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateTest(ctx, "dup_variant", "", []string{"a", "a"})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateTest(ctx, "empty_variant", "", []string{"a", " "})
	assert.True(t, IsValidation(err))
}

func TestCreateTestGetOrCreate(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()

	first, err := svc.CreateTest(ctx, "pricing_banner", "Pricing banner", []string{"control", "discount"})
	require.NoError(t, err)
	assert.Equal(t, types.AbTestStatusDraft, first.Status)

	second, err := svc.CreateTest(ctx, "pricing_banner", "different name", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"control", "discount"}, second.VariantList())
}

func TestGetVariantStable(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()
	createActiveTest(t, svc, "checkout_button", []string{"blue", "green"})

	first, err := svc.GetVariant(ctx, "checkout_button", "subject-42")
	require.NoError(t, err)
	assert.Contains(t, []string{"blue", "green"}, first)

	second, err := svc.GetVariant(ctx, "checkout_button", "subject-42")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Exactly one persisted assignment despite two exposures.
	var n int64
	require.NoError(t, e.db.Model(&types.AbTestAssignment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	// The first exposure leaves an audit event, the second does not.
	assert.Equal(t, int64(1), e.countEvents(t, types.EventAbAssignment))
}

func TestGetVariantUnknownKey(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)

	_, err := svc.GetVariant(context.Background(), "never_created", "subject-1")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestGetVariantInactiveFallback(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()

	test, err := svc.CreateTest(ctx, "draft_test", "", []string{"first", "second"})
	require.NoError(t, err)

	variant, err := svc.GetVariant(ctx, "draft_test", "subject-7")
	require.NoError(t, err)
	assert.Equal(t, "first", variant)

	// Fallback exposure persists nothing.
	var n int64
	require.NoError(t, e.db.Model(&types.AbTestAssignment{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)

	// Same fallback after the test ends.
	_, err = svc.StartTest(ctx, test.ID.String())
	require.NoError(t, err)
	_, err = svc.EndTest(ctx, test.ID.String())
	require.NoError(t, err)

	variant, err = svc.GetVariant(ctx, "draft_test", "subject-8")
	require.NoError(t, err)
	assert.Equal(t, "first", variant)
}

func TestLifecycleTransitions(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()

	test, err := svc.CreateTest(ctx, "lifecycle", "", []string{"a", "b"})
	require.NoError(t, err)

	// Cannot end a draft.
	_, err = svc.EndTest(ctx, test.ID.String())
	assert.ErrorIs(t, err, ErrPolicyViolation)

	started, err := svc.StartTest(ctx, test.ID.String())
	require.NoError(t, err)
	assert.Equal(t, types.AbTestStatusActive, started.Status)
	assert.NotNil(t, started.StartedAt)

	// Cannot start twice.
	_, err = svc.StartTest(ctx, test.ID.String())
	assert.ErrorIs(t, err, ErrPolicyViolation)

	ended, err := svc.EndTest(ctx, test.ID.String())
	require.NoError(t, err)
	assert.Equal(t, types.AbTestStatusEnded, ended.Status)
	assert.NotNil(t, ended.EndedAt)

	// Never backward.
	_, err = svc.StartTest(ctx, test.ID.String())
	assert.ErrorIs(t, err, ErrPolicyViolation)
	_, err = svc.EndTest(ctx, test.ID.String())
	assert.ErrorIs(t, err, ErrPolicyViolation)
}

func TestConversionIdempotent(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()
	test := createActiveTest(t, svc, "checkout_button", []string{"blue", "green"})

	variant, err := svc.GetVariant(ctx, "checkout_button", "subject-42")
	require.NoError(t, err)

	require.NoError(t, svc.TrackConversion(ctx, "checkout_button", "subject-42", "purchase", nil))
	require.NoError(t, svc.TrackConversion(ctx, "checkout_button", "subject-42", "purchase", nil))

	var n int64
	require.NoError(t, e.db.Model(&types.AbTestConversion{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	results, err := svc.GetTestResults(ctx, test.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), results.VariantStats[variant].Assignments)
	assert.Equal(t, int64(1), results.VariantStats[variant].Conversions)
	assert.InDelta(t, 100.0, results.VariantStats[variant].ConversionRate, 0.001)

	// A second distinct goal does count.
	require.NoError(t, svc.TrackConversion(ctx, "checkout_button", "subject-42", "signup", nil))
	require.NoError(t, e.db.Model(&types.AbTestConversion{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestConversionWithoutAssignmentIsNoop(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()
	createActiveTest(t, svc, "no_exposure", []string{"a", "b"})

	require.NoError(t, svc.TrackConversion(ctx, "no_exposure", "never-exposed", "goal", nil))

	var n int64
	require.NoError(t, e.db.Model(&types.AbTestConversion{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestGetTestResults(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)
	ctx := context.Background()
	test := createActiveTest(t, svc, "results_test", []string{"a", "b"})

	// Spread subjects across the buckets until both variants have exposure.
	variants := map[string][]string{}
	for i := 0; i < 20; i++ {
		subject := string(rune('a'+i)) + "-subject"
		variant, err := svc.GetVariant(ctx, "results_test", subject)
		require.NoError(t, err)
		variants[variant] = append(variants[variant], subject)
	}
	require.Len(t, variants, 2)

	// Convert one subject from variant "a"'s bucket.
	converted := variants["a"][0]
	require.NoError(t, svc.TrackConversion(ctx, "results_test", converted, "purchase", nil))

	results, err := svc.GetTestResults(ctx, test.ID.String())
	require.NoError(t, err)

	assert.True(t, results.StillActive)
	assert.Equal(t, int64(20), results.Overall.Assignments)
	assert.Equal(t, int64(1), results.Overall.Conversions)
	assert.Equal(t, "a", results.LeadingVariant)
	for _, stats := range results.VariantStats {
		assert.GreaterOrEqual(t, stats.ConversionRate, 0.0)
		assert.LessOrEqual(t, stats.ConversionRate, 100.0)
	}

	_, err = svc.EndTest(ctx, test.ID.String())
	require.NoError(t, err)

	// Ended tests stay queryable and drop the active warning.
	results, err = svc.GetTestResults(ctx, test.Key)
	require.NoError(t, err)
	assert.False(t, results.StillActive)
	assert.Equal(t, int64(20), results.Overall.Assignments)
}

func TestGetTestResultsUnknown(t *testing.T) {
	e := newTestEnv(t)
	svc := newExperimentService(e)

	_, err := svc.GetTestResults(context.Background(), "no-such-test")
	assert.True(t, errors.Is(err, ErrTestNotFound))
}

func TestBucketIndexDeterministic(t *testing.T) {
	cases := []struct {
		testKey   string
		subjectID string
		variants  int
	}{
		{"checkout_button", "42", 2},
		{"checkout_button", "43", 2},
		{"onboarding_flow", "42", 3},
		{"onboarding_flow", "session-abc123", 5},
	}
	for _, tc := range cases {
		first := bucketIndex(tc.testKey, tc.subjectID, tc.variants)
		for i := 0; i < 10; i++ {
			if got := bucketIndex(tc.testKey, tc.subjectID, tc.variants); got != first {
				t.Fatalf("bucketIndex(%q,%q,%d) unstable: %d then %d", tc.testKey, tc.subjectID, tc.variants, first, got)
			}
		}
		if first < 0 || first >= tc.variants {
			t.Fatalf("bucketIndex(%q,%q,%d)=%d out of range", tc.testKey, tc.subjectID, tc.variants, first)
		}
	}
}
