package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/submission"
	"github.com/noah-isme/gema-exec/internal/tier"
)

func setupTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)
	return store
}

func TestGormStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	sub := submission.New("user-1", "ex-1", "python", "print(1)", tier.Basic)
	require.NoError(t, store.Create(ctx, sub))

	got, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, sub.ID, got.ID)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, tier.Basic, got.Tier)
	require.Equal(t, execution.StatusQueued, got.Status)
}

func TestGormStoreGetByIDNotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, submission.ErrNotFound)
}

func TestGormStoreUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	sub := submission.New("user-1", "ex-1", "python", "", tier.Free)
	require.NoError(t, store.Create(ctx, sub))

	require.NoError(t, store.UpdateStatus(ctx, sub.ID, execution.StatusProcessing, ""))
	got, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, execution.StatusProcessing, got.Status)

	require.ErrorIs(t, store.UpdateStatus(ctx, "missing", execution.StatusProcessing, ""), submission.ErrNotFound)
}

func TestGormStoreSaveResults(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	sub := submission.New("user-1", "ex-1", "python", "print(1)", tier.Free)
	require.NoError(t, store.Create(ctx, sub))
	require.NoError(t, sub.Transition(execution.StatusProcessing))
	require.NoError(t, sub.Transition(execution.StatusAccepted))
	sub.TestsPassed = 2
	sub.EarnedPoints = 10
	sub.PossiblePoints = 10

	batch := grading.BatchResult{
		Results: []grading.TestResult{
			{
				TestID: "t1",
				Name:   "adds small numbers",
				Passed: true,
				Points: 5,
				Outcome: execution.Outcome{
					Status:      execution.StatusAccepted,
					Stdout:      "3\n",
					WallTime:    12 * time.Millisecond,
					MemoryBytes: 4096,
				},
			},
			{
				TestID:  "t2",
				Name:    "handles negatives",
				Hidden:  true,
				Passed:  true,
				Points:  5,
				Outcome: execution.Outcome{Status: execution.StatusAccepted, Stdout: "-1\n"},
			},
		},
		TestsPassed:    2,
		EarnedPoints:   10,
		PossiblePoints: 10,
	}
	require.NoError(t, store.SaveResults(ctx, sub, batch))

	got, err := store.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, execution.StatusAccepted, got.Status)
	require.Equal(t, 10, got.EarnedPoints)

	rows, err := store.GetResults(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "t1", rows[0].TestID)
	require.Equal(t, int64(12), rows[0].WallTimeMs)
	require.Equal(t, int64(4), rows[0].MemoryKB)
	require.True(t, rows[1].Hidden)
}

func TestGormStoreSaveResultsReplacesRows(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	sub := submission.New("user-1", "ex-1", "python", "", tier.Free)
	require.NoError(t, store.Create(ctx, sub))
	require.NoError(t, sub.Transition(execution.StatusProcessing))
	require.NoError(t, sub.Transition(execution.StatusWrongAnswer))

	first := grading.BatchResult{Results: []grading.TestResult{{TestID: "t1"}}}
	require.NoError(t, store.SaveResults(ctx, sub, first))

	second := grading.BatchResult{Results: []grading.TestResult{{TestID: "t1"}, {TestID: "t2"}}}
	require.NoError(t, store.SaveResults(ctx, sub, second))

	rows, err := store.GetResults(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestGormStoreSaveResultsUnknownSubmission(t *testing.T) {
	store := setupTestStore(t)
	sub := submission.New("user-1", "ex-1", "python", "", tier.Free)
	err := store.SaveResults(context.Background(), sub, grading.BatchResult{})
	require.ErrorIs(t, err, submission.ErrNotFound)
}
