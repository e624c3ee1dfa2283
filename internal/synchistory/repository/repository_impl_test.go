package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/azerion/cloudledger/internal/partition"
	"github.com/azerion/cloudledger/internal/synchistory/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRepo(t *testing.T) domain.Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SyncRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewRepository(db, node)
}

func window(startDay, endDay int) partition.Window {
	return partition.Window{
		Start: time.Date(2025, time.March, startDay, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.March, endDay, 0, 0, 0, 0, time.UTC),
		Year:  2025,
		Month: time.March,
	}
}

func outcome(key string, w partition.Window, success bool) domain.Outcome {
	o := domain.Outcome{
		JobName:     "aws_cost_sync",
		ResourceKey: key,
		Window:      w,
		Success:     success,
	}
	if !success {
		o.Err = errors.New("export timed out")
	}
	return o
}

func TestRecordOutcomeStateMachine(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	w := window(1, 3)

	// First failure creates the record at fail count 1.
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))
	candidates, err := repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, domain.SyncStatusFail, candidates[0].Status)
	assert.Equal(t, 1, candidates[0].FailCount)
	assert.NotNil(t, candidates[0].LastError)

	// Repeated failure increments, never duplicates.
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))
	candidates, err = repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 2, candidates[0].FailCount)

	// Eventual success flips status but keeps the lifetime fail count.
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, true)))
	ok, err := repo.HasEverSucceeded(ctx, "aws_cost_sync", "acct")
	require.NoError(t, err)
	assert.True(t, ok)

	candidates, err = repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// A later failure of the same window resumes from the old count.
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))
	candidates, err = repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 3, candidates[0].FailCount)
}

func TestRecordOutcomeSuccessCreatesCleanRecord(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", window(1, 3), true)))

	ok, err := repo.HasEverSucceeded(ctx, "aws_cost_sync", "acct")
	require.NoError(t, err)
	assert.True(t, ok)

	candidates, err := repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRecordOutcomeResetPolicy(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	w := window(1, 3)

	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))

	reset := outcome("acct", w, true)
	reset.ResetFailCountOnSuccess = true
	require.NoError(t, repo.RecordOutcome(ctx, reset))

	// Next failure starts over at 1 because the job opted into resets.
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))
	candidates, err := repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 1, candidates[0].FailCount)
}

func TestFindRetryCandidatesExcludesCappedUnits(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	w := window(1, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", w, false)))
	}

	candidates, err := repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// A higher cap exposes it again.
	candidates, err = repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 4)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestFindRetryCandidatesScopesByJobAndKeys(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct-a", window(1, 3), false)))
	other := outcome("acct-b", window(1, 3), false)
	other.JobName = "gcp_cost_sync"
	require.NoError(t, repo.RecordOutcome(ctx, other))

	candidates, err := repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct-a", "acct-b"}, 3)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "acct-a", candidates[0].ResourceKey)

	candidates, err = repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct-z"}, 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	candidates, err = repo.FindRetryCandidates(ctx, "aws_cost_sync", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestWindowsAreIndependentUnits(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", window(1, 3), false)))
	require.NoError(t, repo.RecordOutcome(ctx, outcome("acct", window(4, 6), false)))

	candidates, err := repo.FindRetryCandidates(ctx, "aws_cost_sync", []string{"acct"}, 3)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestRecordOutcomeRequiresIdentifiers(t *testing.T) {
	repo := newRepo(t)
	err := repo.RecordOutcome(context.Background(), domain.Outcome{Window: window(1, 3)})
	assert.Error(t, err)
}
