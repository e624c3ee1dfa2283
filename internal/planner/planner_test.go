package planner

import (
	"context"
	"testing"
	"time"

	canonicaldomain "github.com/azerion/cloudledger/internal/canonical/domain"
	synchistorydomain "github.com/azerion/cloudledger/internal/synchistory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubHistory struct {
	succeeded map[string]bool
	retries   []synchistorydomain.SyncRecord
}

func (s *stubHistory) HasEverSucceeded(_ context.Context, _, resourceKey string) (bool, error) {
	return s.succeeded[resourceKey], nil
}

func (s *stubHistory) FindRetryCandidates(_ context.Context, _ string, _ []string, maxFailCount int) ([]synchistorydomain.SyncRecord, error) {
	var out []synchistorydomain.SyncRecord
	for _, r := range s.retries {
		if r.FailCount < maxFailCount {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubHistory) RecordOutcome(_ context.Context, _ synchistorydomain.Outcome) error {
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testJob() JobConfig {
	job := DefaultJobConfig()
	job.Name = "aws_cost_sync"
	job.Provider = canonicaldomain.ProviderAWS
	job.MaxWindowDays = 3
	job.RollingWindowDays = 10
	job.MonthCorrectionDays = 5
	return job
}

func TestPlanRollingWindow(t *testing.T) {
	history := &stubHistory{succeeded: map[string]bool{"123456789012": true}}
	p := New(history, zap.NewNop())

	// Mid-month, steady state: lookback is min(dayOfMonth, rolling) = 10 days.
	units, err := p.Plan(context.Background(), PlanRequest{
		Job:          testJob(),
		ResourceKeys: []string{"123456789012"},
		Now:          day(2025, time.March, 20),
	})
	require.NoError(t, err)
	require.Len(t, units, 4)

	total := 0
	for _, u := range units {
		assert.Equal(t, "123456789012", u.ResourceKey)
		assert.LessOrEqual(t, u.Window.Days(), 3)
		total += u.Window.Days()
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, day(2025, time.March, 20), units[0].Window.End)
	assert.Equal(t, day(2025, time.March, 11), units[len(units)-1].Window.Start)
}

func TestPlanEarlyMonthLookback(t *testing.T) {
	history := &stubHistory{succeeded: map[string]bool{"acct": true}}
	p := New(history, zap.NewNop())

	// Day 3 of the month: lookback reaches the start of the previous month.
	units, err := p.Plan(context.Background(), PlanRequest{
		Job:          testJob(),
		ResourceKeys: []string{"acct"},
		Now:          day(2025, time.March, 3),
	})
	require.NoError(t, err)
	require.NotEmpty(t, units)

	earliest := units[len(units)-1].Window.Start
	assert.Equal(t, day(2025, time.February, 1), earliest)
	for _, u := range units {
		assert.Equal(t, u.Window.Start.Month(), u.Window.End.Month())
	}
}

func TestPlanBackfillForNewKey(t *testing.T) {
	history := &stubHistory{succeeded: map[string]bool{}}
	p := New(history, zap.NewNop())

	job := testJob()
	job.BackfillDays = 30
	units, err := p.Plan(context.Background(), PlanRequest{
		Job:          job,
		ResourceKeys: []string{"fresh"},
		Now:          day(2025, time.March, 20),
	})
	require.NoError(t, err)

	total := 0
	for _, u := range units {
		total += u.Window.Days()
	}
	assert.Equal(t, 30, total)
}

func TestPlanBackfillFromInceptionDate(t *testing.T) {
	history := &stubHistory{succeeded: map[string]bool{}}
	p := New(history, zap.NewNop())

	job := testJob()
	job.BackfillDays = 365
	inception := day(2025, time.March, 10)
	job.InceptionDate = &inception

	units, err := p.Plan(context.Background(), PlanRequest{
		Job:          job,
		ResourceKeys: []string{"fresh"},
		Now:          day(2025, time.March, 20),
	})
	require.NoError(t, err)

	total := 0
	for _, u := range units {
		total += u.Window.Days()
	}
	assert.Equal(t, 11, total)
	assert.Equal(t, inception, units[len(units)-1].Window.Start)
}

func TestPlanExplicitStartOverridesHistory(t *testing.T) {
	history := &stubHistory{succeeded: map[string]bool{"acct": true}}
	p := New(history, zap.NewNop())

	start := day(2025, time.January, 1)
	units, err := p.Plan(context.Background(), PlanRequest{
		Job:           testJob(),
		ResourceKeys:  []string{"acct"},
		ExplicitStart: &start,
		Now:           day(2025, time.March, 20),
	})
	require.NoError(t, err)

	total := 0
	for _, u := range units {
		total += u.Window.Days()
	}
	assert.Equal(t, 79, total)
	assert.Equal(t, start, units[len(units)-1].Window.Start)
}

func TestPlanUnionsRetryCandidates(t *testing.T) {
	history := &stubHistory{
		succeeded: map[string]bool{"acct": true},
		retries: []synchistorydomain.SyncRecord{
			{
				JobName:     "aws_cost_sync",
				ResourceKey: "acct",
				StartDate:   day(2025, time.January, 5),
				EndDate:     day(2025, time.January, 7),
				Status:      synchistorydomain.SyncStatusFail,
				FailCount:   1,
			},
			{
				// Retry window identical to a freshly planned one; must not duplicate.
				JobName:     "aws_cost_sync",
				ResourceKey: "acct",
				StartDate:   day(2025, time.March, 18),
				EndDate:     day(2025, time.March, 20),
				Status:      synchistorydomain.SyncStatusFail,
				FailCount:   1,
			},
			{
				// At the fail cap; excluded from automatic retry.
				JobName:     "aws_cost_sync",
				ResourceKey: "acct",
				StartDate:   day(2025, time.January, 1),
				EndDate:     day(2025, time.January, 3),
				Status:      synchistorydomain.SyncStatusFail,
				FailCount:   3,
			},
		},
	}
	p := New(history, zap.NewNop())

	units, err := p.Plan(context.Background(), PlanRequest{
		Job:          testJob(),
		ResourceKeys: []string{"acct"},
		Now:          day(2025, time.March, 20),
	})
	require.NoError(t, err)

	// 4 rolling windows plus exactly one retry unit.
	require.Len(t, units, 5)
	last := units[len(units)-1]
	assert.Equal(t, day(2025, time.January, 5), last.Window.Start)
	assert.Equal(t, day(2025, time.January, 7), last.Window.End)
}

func TestPlanRejectsInvalidRequests(t *testing.T) {
	p := New(&stubHistory{}, zap.NewNop())

	_, err := p.Plan(context.Background(), PlanRequest{
		ResourceKeys: []string{"acct"},
		Now:          day(2025, time.March, 20),
	})
	assert.ErrorIs(t, err, ErrInvalidPlanRequest)

	future := day(2099, time.January, 1)
	_, err = p.Plan(context.Background(), PlanRequest{
		Job:           testJob(),
		ResourceKeys:  []string{"acct"},
		ExplicitStart: &future,
		Now:           day(2025, time.March, 20),
	})
	assert.ErrorIs(t, err, ErrInvalidPlanRequest)
}

func TestPlanNoKeysNoUnits(t *testing.T) {
	p := New(&stubHistory{}, zap.NewNop())

	units, err := p.Plan(context.Background(), PlanRequest{
		Job: testJob(),
		Now: day(2025, time.March, 20),
	})
	require.NoError(t, err)
	assert.Empty(t, units)
}
