package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Slot names in durable storage. The queue slot holds the serialized
// SaleIntent collection, the status slot the single SyncStatus record.
const (
	queueSlot  = "pending_sales_queue"
	statusSlot = "sales_sync_status"
)

// DefaultRetryCap is the number of failed delivery attempts after which an
// intent is excluded from automatic retry.
const DefaultRetryCap = 5

// Store is the durable queue of sale intents awaiting backend confirmation.
// Every mutation re-reads the full collection from storage, transforms it,
// and writes it back under one lock, so no operation acts on a stale copy.
//
// Durability is best effort: when storage turns out unreadable or a write
// fails, the Store keeps serving the session from its in-memory copy
// instead of raising. Writers in other processes are not coordinated;
// a single process is assumed to own the slots.
type Store struct {
	mu       sync.Mutex
	storage  Storage
	logger   *zap.Logger
	retryCap int

	// Last known state, served when storage is unavailable. Once a write
	// fails the session runs from this copy so confirmed enqueues are not
	// lost to a flaky storage read.
	cache       []SaleIntent
	statusCache SyncStatus
	degraded    bool
}

// NewStore creates a Store over the given storage. A retryCap <= 0 falls
// back to DefaultRetryCap.
func NewStore(storage Storage, logger *zap.Logger, retryCap int) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryCap <= 0 {
		retryCap = DefaultRetryCap
	}
	return &Store{
		storage:  storage,
		logger:   logger,
		retryCap: retryCap,
	}
}

// load returns the current collection. Callers must hold s.mu.
func (s *Store) load() []SaleIntent {
	if s.degraded {
		return s.cache
	}
	data, err := s.storage.Read(queueSlot)
	if err != nil {
		s.logger.Warn("queue storage unreadable, serving in-memory state", zap.Error(err))
		return s.cache
	}
	if len(data) == 0 {
		return nil
	}
	var items []SaleIntent
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("queue slot corrupted, serving in-memory state", zap.Error(err))
		return s.cache
	}
	return items
}

// save persists the collection and updates the in-memory copy. Callers must
// hold s.mu. A persistence failure is logged, never raised.
func (s *Store) save(items []SaleIntent) error {
	s.cache = items
	data, err := json.Marshal(items)
	if err != nil {
		s.logger.Error("failed to serialize queue", zap.Error(err))
		return err
	}
	if err := s.storage.Write(queueSlot, data); err != nil {
		s.logger.Error("failed to persist queue, continuing in-memory", zap.Error(err))
		s.degraded = true
		return err
	}
	return nil
}

// Enqueue appends a new sale intent with a fresh id and returns that id.
// The intent is always kept for the session; a persistence failure is
// reported through the returned error without undoing the enqueue, so the
// producer's optimistic flow is not interrupted.
func (s *Store) Enqueue(payload SalePayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent := SaleIntent{
		ID:          uuid.NewString(),
		SalePayload: payload,
		Status:      StatusPending,
		RetryCount:  0,
		CreatedAt:   time.Now().UTC(),
	}
	items := append(s.load(), intent)
	err := s.save(items)
	s.logger.Info("sale intent enqueued",
		zap.String("intent_id", intent.ID),
		zap.String("product_id", payload.ProductID),
		zap.Int("quantity", payload.Quantity),
	)
	return intent.ID, err
}

// List returns all records in insertion order.
func (s *Store) List() []SaleIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	out := make([]SaleIntent, len(items))
	copy(out, items)
	return out
}

// MarkSyncing flags the record as having a delivery attempt in progress.
// Unknown ids are a no-op.
func (s *Store) MarkSyncing(id string) {
	s.transform(id, func(it *SaleIntent) {
		it.Status = StatusSyncing
	})
}

// MarkSynced moves the record to its terminal completed state. Idempotent.
func (s *Store) MarkSynced(id string) {
	s.transform(id, func(it *SaleIntent) {
		if it.Status == StatusCompleted {
			return
		}
		now := time.Now().UTC()
		it.Status = StatusCompleted
		it.SyncedAt = &now
	})
}

// MarkFailed records a failed delivery attempt and bumps the retry counter.
func (s *Store) MarkFailed(id string, cause error) {
	s.transform(id, func(it *SaleIntent) {
		now := time.Now().UTC()
		it.Status = StatusFailed
		it.RetryCount++
		it.LastErrorAt = &now
		if cause != nil {
			it.Error = cause.Error()
		} else {
			it.Error = "unknown error"
		}
	})
}

func (s *Store) transform(id string, fn func(*SaleIntent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	for i := range items {
		if items[i].ID == id {
			fn(&items[i])
			_ = s.save(items)
			return
		}
	}
}

// EligibleForRetry returns the records a drain cycle should attempt:
// pending or failed, and under the retry cap. Enqueue order is preserved.
func (s *Store) EligibleForRetry() []SaleIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SaleIntent
	for _, it := range s.load() {
		if (it.Status == StatusPending || it.Status == StatusFailed) && it.RetryCount < s.retryCap {
			out = append(out, it)
		}
	}
	return out
}

// PurgeCompleted removes every completed record and reports how many were
// removed. Idempotent.
func (s *Store) PurgeCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.load()
	kept := items[:0:0]
	for _, it := range items {
		if it.Status != StatusCompleted {
			kept = append(kept, it)
		}
	}
	removed := len(items) - len(kept)
	if removed > 0 {
		_ = s.save(kept)
		s.logger.Info("purged completed sale intents", zap.Int("removed", removed))
	}
	return removed
}

// Reset clears the queue and the sync status record. Destructive; meant for
// manual recovery only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.statusCache = SyncStatus{}
	if err := s.storage.Delete(queueSlot); err != nil {
		s.logger.Error("failed to clear queue slot", zap.Error(err))
	}
	if err := s.storage.Delete(statusSlot); err != nil {
		s.logger.Error("failed to clear sync status slot", zap.Error(err))
	}
	s.logger.Warn("sale queue reset")
}

// Stats returns record counts by status. Pure read.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, it := range s.load() {
		st.Total++
		switch it.Status {
		case StatusPending:
			st.Pending++
		case StatusSyncing:
			st.Syncing++
		case StatusFailed:
			st.Failed++
		case StatusCompleted:
			st.Completed++
		}
	}
	return st
}

// SyncStatus returns the current sync status record.
func (s *Store) SyncStatus() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStatus()
}

// loadStatus reads the status slot. Callers must hold s.mu.
func (s *Store) loadStatus() SyncStatus {
	if s.degraded {
		return s.statusCache
	}
	data, err := s.storage.Read(statusSlot)
	if err != nil {
		s.logger.Warn("sync status slot unreadable, serving in-memory state", zap.Error(err))
		return s.statusCache
	}
	if len(data) == 0 {
		return SyncStatus{}
	}
	var st SyncStatus
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("sync status slot corrupted, serving in-memory state", zap.Error(err))
		return s.statusCache
	}
	return st
}

// SetSyncStatus merges the patch into the status record and persists it.
func (s *Store) SetSyncStatus(patch SyncStatusPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.loadStatus()
	if patch.Syncing != nil {
		st.Syncing = *patch.Syncing
	}
	if patch.LastSync != nil {
		st.LastSync = patch.LastSync
	}
	if patch.LastError != nil {
		st.LastError = *patch.LastError
	}
	if patch.LastResult != nil {
		st.LastResult = patch.LastResult
	}
	now := time.Now().UTC()
	st.LastUpdate = &now

	s.statusCache = st
	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Error("failed to serialize sync status", zap.Error(err))
		return
	}
	if err := s.storage.Write(statusSlot, data); err != nil {
		s.logger.Error("failed to persist sync status, continuing in-memory", zap.Error(err))
		s.degraded = true
	}
}

// RetryCap returns the configured retry cap.
func (s *Store) RetryCap() int {
	return s.retryCap
}
