// Package syncer drives delivery of queued sale intents to the remote
// atomic sale operation.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sale_sync/internal/queue"

	"go.uber.org/zap"
)

// ErrSyncInFlight is returned when a drain cycle is requested while another
// one is still running. The trigger is dropped, not queued.
var ErrSyncInFlight = errors.New("sync already in progress")

// ErrSyncDebounced is returned when a drain cycle is requested before the
// minimum spacing since the previous cycle start has elapsed.
var ErrSyncDebounced = errors.New("sync requested too soon after previous cycle")

// SaleSender is the remote atomic sale operation. Any returned error counts
// as a delivery failure; the operation is assumed safe to re-invoke for the
// same intent.
type SaleSender interface {
	Send(ctx context.Context, payload queue.SalePayload) error
}

// IdentitySource reports the current authenticated caller, if any. The
// coordinator stays idle while no identity is available.
type IdentitySource interface {
	CurrentUser(ctx context.Context) (string, bool)
}

// Options tunes the coordinator's trigger policy. Zero values fall back to
// the defaults below.
type Options struct {
	// Interval between periodic drain attempts.
	Interval time.Duration
	// SettleDelay before the startup drain once an identity appears.
	SettleDelay time.Duration
	// MinSpacing between the starts of two consecutive drain cycles.
	// Negative disables the spacing guard.
	MinSpacing time.Duration
	// IdentityPoll is how often identity presence is re-checked.
	IdentityPoll time.Duration
}

const (
	defaultInterval     = 30 * time.Second
	defaultSettleDelay  = time.Second
	defaultMinSpacing   = 5 * time.Second
	defaultIdentityPoll = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	if o.MinSpacing == 0 {
		o.MinSpacing = defaultMinSpacing
	}
	if o.IdentityPoll <= 0 {
		o.IdentityPoll = defaultIdentityPoll
	}
	return o
}

// Coordinator decides when to attempt delivery, drains the queue against
// the remote operation, and writes outcomes back to the store. At most one
// drain cycle is in flight at any time.
type Coordinator struct {
	store    *queue.Store
	sender   SaleSender
	identity IdentitySource
	opts     Options
	logger   *zap.Logger

	inFlight atomic.Bool

	mu           sync.Mutex
	lastStart    time.Time
	observers    map[int]func(queue.SyncResult)
	nextObserver int
}

// NewCoordinator creates a Coordinator. All collaborators are injected so
// tests can substitute in-memory fakes.
func NewCoordinator(store *queue.Store, sender SaleSender, identity IdentitySource, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		sender:    sender,
		identity:  identity,
		opts:      opts.withDefaults(),
		logger:    logger,
		observers: map[int]func(queue.SyncResult){},
	}
}

// Subscribe registers fn to be called with the result of every drain cycle
// that ran. The returned function unsubscribes it.
func (c *Coordinator) Subscribe(fn func(queue.SyncResult)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Run drives the trigger policy until ctx is cancelled: a one-shot drain
// shortly after an identity first appears, then periodic drains while work
// is queued. Dropped triggers (in-flight, debounce) are silently ignored.
func (c *Coordinator) Run(ctx context.Context) {
	interval := time.NewTicker(c.opts.Interval)
	defer interval.Stop()
	identityPoll := time.NewTicker(c.opts.IdentityPoll)
	defer identityPoll.Stop()

	_, hasIdentity := c.identity.CurrentUser(ctx)
	var settle <-chan time.Time
	if hasIdentity {
		settle = time.After(c.opts.SettleDelay)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-settle:
			settle = nil
			c.runCycle(ctx)

		case <-identityPoll.C:
			_, ok := c.identity.CurrentUser(ctx)
			if ok && !hasIdentity {
				c.logger.Info("caller identity available, arming startup sync")
				settle = time.After(c.opts.SettleDelay)
			}
			hasIdentity = ok

		case <-interval.C:
			if !hasIdentity {
				continue
			}
			stats := c.store.Stats()
			if stats.Pending == 0 && stats.Failed == 0 {
				continue
			}
			c.runCycle(ctx)
		}
	}
}

// runCycle runs one drain and swallows dropped-trigger conditions.
func (c *Coordinator) runCycle(ctx context.Context) {
	if _, err := c.Drain(ctx); err != nil {
		if errors.Is(err, ErrSyncInFlight) || errors.Is(err, ErrSyncDebounced) {
			c.logger.Debug("drain trigger dropped", zap.Error(err))
			return
		}
		c.logger.Error("drain cycle failed", zap.Error(err))
	}
}

// Drain runs one drain cycle: every eligible intent is delivered strictly
// sequentially, outcomes are written back to the store, completed records
// are purged, and observers are notified. A second call while a cycle is in
// flight returns ErrSyncInFlight; a call closer than MinSpacing to the
// previous cycle start returns ErrSyncDebounced.
func (c *Coordinator) Drain(ctx context.Context) (queue.SyncResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return queue.SyncResult{}, ErrSyncInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	now := time.Now()
	if !c.lastStart.IsZero() && now.Sub(c.lastStart) < c.opts.MinSpacing {
		c.mu.Unlock()
		return queue.SyncResult{}, ErrSyncDebounced
	}
	c.lastStart = now
	c.mu.Unlock()

	return c.drain(ctx)
}

func (c *Coordinator) drain(ctx context.Context) (result queue.SyncResult, err error) {
	// A storage-layer panic must not leak the syncing flag or kill the
	// process; record it and let the in-flight guard be released.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("drain cycle panicked: %v", r)
			msg := err.Error()
			c.store.SetSyncStatus(queue.SyncStatusPatch{
				Syncing:   boolPtr(false),
				LastError: &msg,
			})
			c.logger.Error("drain cycle panicked", zap.Any("panic", r))
		}
	}()

	c.store.SetSyncStatus(queue.SyncStatusPatch{Syncing: boolPtr(true)})

	eligible := c.store.EligibleForRetry()
	if len(eligible) == 0 {
		c.store.SetSyncStatus(queue.SyncStatusPatch{
			Syncing:  boolPtr(false),
			LastSync: timePtr(time.Now().UTC()),
		})
		return queue.SyncResult{}, nil
	}

	c.logger.Info("draining sale queue", zap.Int("eligible", len(eligible)))

	for _, intent := range eligible {
		if ctx.Err() != nil {
			// Remaining records stay pending/failed and are picked up by
			// the next cycle.
			break
		}
		c.store.MarkSyncing(intent.ID)
		if sendErr := c.send(ctx, intent.SalePayload); sendErr != nil {
			c.logger.Warn("sale delivery failed",
				zap.String("intent_id", intent.ID),
				zap.Int("retry_count", intent.RetryCount+1),
				zap.Error(sendErr),
			)
			c.store.MarkFailed(intent.ID, sendErr)
			result.FailureCount++
			continue
		}
		c.store.MarkSynced(intent.ID)
		result.SuccessCount++
	}

	c.store.SetSyncStatus(queue.SyncStatusPatch{
		Syncing:    boolPtr(false),
		LastSync:   timePtr(time.Now().UTC()),
		LastResult: &queue.SyncResult{SuccessCount: result.SuccessCount, FailureCount: result.FailureCount},
	})
	c.store.PurgeCompleted()

	c.logger.Info("drain cycle finished",
		zap.Int("success", result.SuccessCount),
		zap.Int("failure", result.FailureCount),
	)
	c.notify(result)
	return result, nil
}

// send invokes the remote operation for one intent. A panicking sender is
// folded into a delivery failure so the rest of the batch still runs.
func (c *Coordinator) send(ctx context.Context, payload queue.SalePayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sale delivery panicked: %v", r)
		}
	}()
	return c.sender.Send(ctx, payload)
}

func (c *Coordinator) notify(result queue.SyncResult) {
	c.mu.Lock()
	fns := make([]func(queue.SyncResult), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(result)
	}
}

// Stats exposes the store's queue statistics to the rendering layer.
func (c *Coordinator) Stats() queue.Stats {
	return c.store.Stats()
}

// SyncStatus exposes the store's sync status record to the rendering layer.
func (c *Coordinator) SyncStatus() queue.SyncStatus {
	return c.store.SyncStatus()
}

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }
