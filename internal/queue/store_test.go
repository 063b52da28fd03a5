package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) (*Store, *MemStorage) {
	storage := NewMemStorage()
	store := NewStore(storage, zaptest.NewLogger(t), 0)
	return store, storage
}

func TestEnqueuePreservesOrderWithUniqueIDs(t *testing.T) {
	store, _ := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.Enqueue(SalePayload{
			ProductID:   fmt.Sprintf("p%d", i),
			ProductName: fmt.Sprintf("Product %d", i),
			Quantity:    1,
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}

	items := store.List()
	require.Len(t, items, 5, "Expected every enqueued intent to be listed")

	seen := map[string]bool{}
	for i, it := range items {
		assert.Equal(t, ids[i], it.ID, "Expected insertion order to be preserved")
		assert.Equal(t, StatusPending, it.Status)
		assert.Equal(t, 0, it.RetryCount)
		assert.False(t, it.CreatedAt.IsZero(), "Expected CreatedAt to be set")
		assert.False(t, seen[it.ID], "Expected intent ids to be unique")
		seen[it.ID] = true
	}
}

func TestMarkFailedIncrementsRetryCountUntilCap(t *testing.T) {
	store, _ := newTestStore(t)

	id, err := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "Widget", Quantity: 1})
	require.NoError(t, err)

	for i := 1; i <= DefaultRetryCap; i++ {
		store.MarkFailed(id, errors.New("backend unavailable"))
		items := store.List()
		require.Len(t, items, 1)
		assert.Equal(t, i, items[0].RetryCount, "Expected retry count to increase by exactly 1")
		assert.Equal(t, StatusFailed, items[0].Status)
		assert.Equal(t, "backend unavailable", items[0].Error)
		assert.NotNil(t, items[0].LastErrorAt)
	}

	assert.Empty(t, store.EligibleForRetry(), "Expected exhausted intent to be excluded from retry")
	assert.Len(t, store.List(), 1, "Expected exhausted intent to remain inspectable")
}

func TestEligibleForRetryIncludesPendingAndFailedUnderCap(t *testing.T) {
	store, _ := newTestStore(t)

	pendingID, _ := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "A", Quantity: 1})
	failedID, _ := store.Enqueue(SalePayload{ProductID: "p2", ProductName: "B", Quantity: 1})
	completedID, _ := store.Enqueue(SalePayload{ProductID: "p3", ProductName: "C", Quantity: 1})

	store.MarkFailed(failedID, errors.New("boom"))
	store.MarkSynced(completedID)

	eligible := store.EligibleForRetry()
	require.Len(t, eligible, 2)
	assert.Equal(t, pendingID, eligible[0].ID, "Expected enqueue order to be preserved")
	assert.Equal(t, failedID, eligible[1].ID)
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	id, err := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "Widget", Quantity: 1})
	require.NoError(t, err)

	store.MarkSynced(id)
	items := store.List()
	require.Len(t, items, 1)
	require.Equal(t, StatusCompleted, items[0].Status)
	require.NotNil(t, items[0].SyncedAt)
	firstSyncedAt := *items[0].SyncedAt

	store.MarkSynced(id)
	items = store.List()
	require.Len(t, items, 1)
	assert.Equal(t, StatusCompleted, items[0].Status)
	assert.Equal(t, firstSyncedAt, *items[0].SyncedAt, "Expected completed record to stay untouched")
}

func TestTransitionOnUnknownIDIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)

	id, _ := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "Widget", Quantity: 1})

	store.MarkSyncing("no-such-id")
	store.MarkSynced("no-such-id")
	store.MarkFailed("no-such-id", errors.New("boom"))

	items := store.List()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, StatusPending, items[0].Status)
	assert.Equal(t, 0, items[0].RetryCount)
}

func TestPurgeCompletedLeavesOthersUntouched(t *testing.T) {
	store, _ := newTestStore(t)

	doneID, _ := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "A", Quantity: 1})
	pendingID, _ := store.Enqueue(SalePayload{ProductID: "p2", ProductName: "B", Quantity: 1})
	failedID, _ := store.Enqueue(SalePayload{ProductID: "p3", ProductName: "C", Quantity: 1})
	store.MarkSynced(doneID)
	store.MarkFailed(failedID, errors.New("boom"))

	removed := store.PurgeCompleted()
	assert.Equal(t, 1, removed)

	items := store.List()
	require.Len(t, items, 2)
	assert.Equal(t, pendingID, items[0].ID)
	assert.Equal(t, failedID, items[1].ID)

	assert.Equal(t, 0, store.PurgeCompleted(), "Expected purge to be idempotent")
}

func TestStatsCountsByStatus(t *testing.T) {
	store, _ := newTestStore(t)

	a, _ := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "A", Quantity: 1})
	b, _ := store.Enqueue(SalePayload{ProductID: "p2", ProductName: "B", Quantity: 1})
	c, _ := store.Enqueue(SalePayload{ProductID: "p3", ProductName: "C", Quantity: 1})
	_, _ = store.Enqueue(SalePayload{ProductID: "p4", ProductName: "D", Quantity: 1})

	store.MarkSyncing(a)
	store.MarkFailed(b, errors.New("boom"))
	store.MarkSynced(c)

	stats := store.Stats()
	assert.Equal(t, Stats{Total: 4, Pending: 1, Syncing: 1, Failed: 1, Completed: 1}, stats)
}

func TestCorruptQueueSlotReadsAsEmpty(t *testing.T) {
	storage := NewMemStorage()
	require.NoError(t, storage.Write(queueSlot, []byte("{not json")))

	store := NewStore(storage, zaptest.NewLogger(t), 0)
	assert.Empty(t, store.List(), "Expected corrupt slot to read as an empty collection")
	assert.Equal(t, Stats{}, store.Stats())
}

func TestCorruptStatusSlotReadsAsDefault(t *testing.T) {
	storage := NewMemStorage()
	require.NoError(t, storage.Write(statusSlot, []byte("][")))

	store := NewStore(storage, zaptest.NewLogger(t), 0)
	assert.Equal(t, SyncStatus{}, store.SyncStatus())
}

func TestQueueSurvivesRestart(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	store := NewStore(storage, zaptest.NewLogger(t), 0)
	id, err := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "Widget", Quantity: 2, SalePrice: 1000, CostPrice: 600})
	require.NoError(t, err)
	store.MarkFailed(id, errors.New("offline"))

	// A fresh store over the same storage models a process restart.
	reopened := NewStore(storage, zaptest.NewLogger(t), 0)
	items := reopened.List()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, StatusFailed, items[0].Status)
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Equal(t, "Widget", items[0].ProductName)
}

func TestSetSyncStatusMergesPartialUpdates(t *testing.T) {
	store, _ := newTestStore(t)

	syncing := true
	store.SetSyncStatus(SyncStatusPatch{Syncing: &syncing})
	st := store.SyncStatus()
	assert.True(t, st.Syncing)
	assert.NotNil(t, st.LastUpdate)

	result := SyncResult{SuccessCount: 2, FailureCount: 1}
	syncing = false
	store.SetSyncStatus(SyncStatusPatch{Syncing: &syncing, LastResult: &result})

	st = store.SyncStatus()
	assert.False(t, st.Syncing)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, result, *st.LastResult, "Expected merge to keep the latest result")
}

func TestResetClearsQueueAndStatus(t *testing.T) {
	store, storage := newTestStore(t)

	_, _ = store.Enqueue(SalePayload{ProductID: "p1", ProductName: "Widget", Quantity: 1})
	syncing := true
	store.SetSyncStatus(SyncStatusPatch{Syncing: &syncing})

	store.Reset()

	assert.Empty(t, store.List())
	assert.Equal(t, SyncStatus{}, store.SyncStatus())

	data, err := storage.Read(queueSlot)
	require.NoError(t, err)
	assert.Nil(t, data, "Expected queue slot to be deleted")
}

// failingStorage rejects every write, simulating unavailable durable storage.
type failingStorage struct {
	*MemStorage
}

func (f *failingStorage) Write(slot string, data []byte) error {
	return errors.New("storage unavailable")
}

func TestEnqueueSurvivesPersistenceFailure(t *testing.T) {
	storage := &failingStorage{MemStorage: NewMemStorage()}
	store := NewStore(storage, zaptest.NewLogger(t), 0)

	id, err := store.Enqueue(SalePayload{ProductID: "p1", ProductName: "Widget", Quantity: 1})
	assert.Error(t, err, "Expected the persistence failure to be reported")
	assert.NotEmpty(t, id, "Expected an id even when persistence fails")

	// The session keeps serving the record from memory.
	items := store.List()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)

	store.MarkSynced(id)
	items = store.List()
	require.Len(t, items, 1)
	assert.Equal(t, StatusCompleted, items[0].Status, "Expected in-memory operation to keep working")
}
