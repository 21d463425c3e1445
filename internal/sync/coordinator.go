// Package sync reconciles locally captured time entries against the remote
// work item tracker. Connectivity is an explicit input: a drain in offline
// mode touches nothing and reports the queue size. Entries for the same work
// item are applied strictly oldest-first by one logical worker; distinct work
// items drain concurrently under a bounded worker limit.
package sync

import (
	"context"
	"database/sql"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danpires/tally/internal/config"
	"github.com/danpires/tally/internal/db"
	"github.com/danpires/tally/internal/entry"
	"github.com/danpires/tally/internal/errors"
)

// Remote is the slice of the tracker client the coordinator needs.
type Remote interface {
	GetWorkItem(ctx context.Context, id int) (*entry.WorkItem, error)
	UpdateWork(ctx context.Context, id int, completedWork, remainingWork float64, idempotencyToken string) error
}

// DrainInput controls a drain pass.
type DrainInput struct {
	// Online is the caller's connectivity verdict. The coordinator never
	// probes the network itself.
	Online bool `json:"online"`
}

// DrainOutput reports what one drain pass did.
type DrainOutput struct {
	Online    bool `json:"online"`
	Pending   int  `json:"pending"`
	Synced    int  `json:"synced"`
	Conflicts int  `json:"conflicts"`
	Failed    int  `json:"failed"`
	// Deferred entries stay pending: their retry time has not arrived yet, or
	// an earlier entry for the same work item hit a transient failure.
	Deferred int `json:"deferred"`
}

// Coordinator drains the pending entry queue against the remote tracker.
type Coordinator struct {
	database    *sql.DB
	remote      Remote
	maxWorkers  int
	maxAttempts int
	backoff     Backoff

	now func() time.Time
}

// NewCoordinator creates a coordinator over the local store and remote client.
func NewCoordinator(database *sql.DB, remote Remote, cfg *config.Config) *Coordinator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Coordinator{
		database:    database,
		remote:      remote,
		maxWorkers:  cfg.MaxSyncWorkers,
		maxAttempts: cfg.MaxSyncAttempts,
		backoff: Backoff{
			Base: time.Duration(cfg.BackoffBaseMillis) * time.Millisecond,
			Cap:  time.Duration(cfg.BackoffCapMillis) * time.Millisecond,
		},
		now: time.Now,
	}
}

// Drain pushes every eligible pending entry to the tracker. Offline drains
// are a no-op beyond counting the queue.
func (c *Coordinator) Drain(ctx context.Context, in DrainInput) (*DrainOutput, error) {
	pending, err := db.ListPending(c.database)
	if err != nil {
		return nil, err
	}

	out := &DrainOutput{Online: in.Online, Pending: len(pending)}
	if !in.Online {
		out.Deferred = len(pending)
		return out, nil
	}
	if len(pending) == 0 {
		return out, nil
	}

	// Group by work item, preserving creation order within each group.
	queues := make(map[int][]entry.TimeEntry)
	order := make([]int, 0)
	for _, e := range pending {
		if _, seen := queues[e.WorkItemID]; !seen {
			order = append(order, e.WorkItemID)
		}
		queues[e.WorkItemID] = append(queues[e.WorkItemID], e)
	}

	var mu gosync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxWorkers)
	for _, workItemID := range order {
		queue := queues[workItemID]
		group.Go(func() error {
			tally, err := c.drainWorkItem(gctx, workItemID, queue)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Synced += tally.Synced
			out.Conflicts += tally.Conflicts
			out.Failed += tally.Failed
			out.Deferred += tally.Deferred
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// drainWorkItem applies one work item's queue in order. A transient failure
// stops the queue for this pass; later entries must not be applied out of
// order, so they count as deferred.
func (c *Coordinator) drainWorkItem(ctx context.Context, workItemID int, queue []entry.TimeEntry) (*DrainOutput, error) {
	tally := &DrainOutput{}
	var item *entry.WorkItem

	for i, e := range queue {
		rec, err := db.GetSyncRecord(c.database, e.ID)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.NextRetryAt > c.now().Unix() {
			tally.Deferred += len(queue) - i
			return tally, nil
		}

		if item == nil {
			item, err = c.remote.GetWorkItem(ctx, workItemID)
			if err != nil {
				if errors.Is(err, errors.ErrTransient) {
					deferred, ferr := c.noteTransient(&queue[i], err)
					if ferr != nil {
						return nil, ferr
					}
					if deferred {
						tally.Deferred += len(queue) - i
					} else {
						tally.Failed++
						tally.Deferred += len(queue) - i - 1
					}
					return tally, nil
				}
				// The item itself is bad; every entry for it fails terminally.
				for _, dead := range queue[i:] {
					if ferr := c.failTerminal(dead.ID, err.Error()); ferr != nil {
						return nil, ferr
					}
					tally.Failed++
				}
				return tally, nil
			}
		}

		if !item.Type.Loggable() {
			mismatch := errors.NewTypeMismatch(workItemID, string(item.Type))
			for _, dead := range queue[i:] {
				if ferr := c.failTerminal(dead.ID, mismatch.Error()); ferr != nil {
					return nil, ferr
				}
				tally.Failed++
			}
			return tally, nil
		}

		hours := entry.HoursFromMinutes(e.DurationMinutes)
		completed := item.CompletedWork + hours
		remaining := item.RemainingWork - hours
		var clamped *float64
		if remaining < 0 {
			// Record how much could not be subtracted before clamping to zero.
			excess := -remaining
			clamped = &excess
			remaining = 0
		}

		// The entry ID doubles as the idempotency token, so a duplicate
		// delivery of the same update is applied once by the tracker.
		err = c.remote.UpdateWork(ctx, workItemID, completed, remaining, e.ID)
		if err != nil {
			if errors.Is(err, errors.ErrTransient) {
				deferred, ferr := c.noteTransient(&queue[i], err)
				if ferr != nil {
					return nil, ferr
				}
				if deferred {
					tally.Deferred += len(queue) - i
				} else {
					tally.Failed++
					tally.Deferred += len(queue) - i - 1
				}
				return tally, nil
			}
			if ferr := c.failTerminal(e.ID, err.Error()); ferr != nil {
				return nil, ferr
			}
			tally.Failed++
			continue
		}

		item.CompletedWork = completed
		item.RemainingWork = remaining
		item.LastSyncedAt = c.now().Unix()

		status := entry.StatusSynced
		if clamped != nil {
			status = entry.StatusConflict
		}
		if err := db.ApplySyncOutcome(c.database, e.ID, status, clamped, item); err != nil {
			return nil, err
		}
		if clamped != nil {
			tally.Conflicts++
		} else {
			tally.Synced++
		}
	}
	return tally, nil
}

// noteTransient bumps the entry's attempt count and schedules its next retry.
// Once the attempt budget is spent the entry fails terminally; the returned
// bool reports whether the entry is still retryable.
func (c *Coordinator) noteTransient(e *entry.TimeEntry, cause error) (bool, error) {
	rec, err := db.GetSyncRecord(c.database, e.ID)
	if err != nil {
		return false, err
	}
	attempt := 1
	if rec != nil {
		attempt = rec.Attempts + 1
	}
	if attempt >= c.maxAttempts {
		msg := fmt.Sprintf("gave up after %d attempts: %v", attempt, cause)
		if _, err := db.RecordSyncFailure(c.database, e.ID, msg, 0); err != nil {
			return false, err
		}
		if err := db.ApplySyncOutcome(c.database, e.ID, entry.StatusFailed, nil, nil); err != nil {
			return false, err
		}
		return false, nil
	}

	nextRetryAt := c.now().Unix() + ceilSeconds(c.backoff.Delay(attempt))
	if _, err := db.RecordSyncFailure(c.database, e.ID, cause.Error(), nextRetryAt); err != nil {
		return false, err
	}
	return true, nil
}

// ceilSeconds rounds a delay up to whole seconds. NextRetryAt is stored in
// Unix seconds, so a jittered sub-second delay must still schedule the retry
// strictly after the current second.
func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}

// failTerminal marks an entry permanently failed, keeping the reason on its
// sync record for inspection.
func (c *Coordinator) failTerminal(entryID, reason string) error {
	if _, err := db.RecordSyncFailure(c.database, entryID, reason, 0); err != nil {
		return err
	}
	return db.ApplySyncOutcome(c.database, entryID, entry.StatusFailed, nil, nil)
}
