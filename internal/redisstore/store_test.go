package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := New(Options{Addr: mr.Addr(), TTL: ttl})
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStoreSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	job := models.JobRecord{
		ID:              "job-1",
		Status:          "running",
		Stage:           "generating",
		Progress:        2,
		Total:           4,
		StudentName:     "Jane Doe",
		AssignmentTitle: "Essay 1",
		StartedAt:       started,
	}
	require.NoError(t, store.SaveJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, job.Stage, got.Stage)
	assert.Equal(t, 2, got.Progress)
	assert.True(t, got.StartedAt.Equal(started))

	done := started.Add(time.Minute)
	job.Status = "completed"
	job.Mark = "85"
	job.CompletedAt = &done
	require.NoError(t, store.SaveJob(ctx, job))

	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "85", got.Mark)
	require.NotNil(t, got.CompletedAt)
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := newTestStore(t, 0)

	got, err := store.GetJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreListMostRecentFirst(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveJob(ctx, models.JobRecord{
			ID:        id,
			Status:    "pending",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// Re-saving must not duplicate the index entry.
	require.NoError(t, store.SaveJob(ctx, models.JobRecord{ID: "a", Status: "failed", StartedAt: base}))

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
	assert.Equal(t, "failed", jobs[2].Status)
}

func TestStoreListPrunesExpired(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveJob(ctx, models.JobRecord{ID: "old", StartedAt: now.Add(-time.Hour)}))
	mr.FastForward(2 * time.Hour)
	require.NoError(t, store.SaveJob(ctx, models.JobRecord{ID: "new", StartedAt: now}))

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "new", jobs[0].ID)

	members, err := mr.ZMembers("marker:jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, members)
}

func TestStoreListEmpty(t *testing.T) {
	store, _ := newTestStore(t, 0)

	jobs, err := store.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
