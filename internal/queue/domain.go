package queue

import "time"

// Status is the lifecycle state of a SaleIntent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSyncing   Status = "syncing"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed, StatusCompleted:
		return true
	}
	return false
}

// SalePayload is the sale data forwarded verbatim to the remote atomic
// sale operation.
type SalePayload struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	SalePrice   float64 `json:"sale_price"`
	CostPrice   float64 `json:"cost_price"`
}

// SaleIntent is a durable record of one attempted sale, kept locally until
// the backend confirms it. The ID is generated locally and is not the
// server-side sale identifier.
type SaleIntent struct {
	ID string `json:"id"`
	SalePayload
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	CreatedAt   time.Time  `json:"created_at"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// SyncResult aggregates the outcome of one drain cycle.
type SyncResult struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// SyncStatus describes the coordinator's last or current run. A single
// instance is kept, overwritten on every status change.
type SyncStatus struct {
	Syncing    bool        `json:"syncing"`
	LastSync   *time.Time  `json:"last_sync,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	LastResult *SyncResult `json:"last_result,omitempty"`
	LastUpdate *time.Time  `json:"last_update,omitempty"`
}

// SyncStatusPatch is a partial SyncStatus; nil fields are left untouched
// by SetSyncStatus.
type SyncStatusPatch struct {
	Syncing    *bool
	LastSync   *time.Time
	LastError  *string
	LastResult *SyncResult
}

// Stats holds queue record counts by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Syncing   int `json:"syncing"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}
