package task

import (
	"context"

	"github.com/stellarlinkco/mirumi/internal/store"
)

// The helpers below are the status changes the runner performs. Each one is
// a single ApplyUpdate, so the timestamps that go with a status are written
// in the same statement as the status itself.

// Start marks the task in progress and drops its paused snapshot.
func (e *Engine) Start(ctx context.Context, id string) error {
	return e.ApplyUpdate(ctx, id, Patch{
		Status:               Set(StatusInProgress),
		RemainingTimeSeconds: Null[int64](),
	})
}

// Pause marks the task paused, keeping remaining seconds for the next start
// and adding elapsed seconds to the time spent.
func (e *Engine) Pause(ctx context.Context, id string, remaining, elapsed int64) error {
	p := Patch{
		Status:               Set(StatusPaused),
		RemainingTimeSeconds: Set(max(remaining, 0)),
		LastPausedAt:         Set(store.FormatTime(e.now())),
	}
	if err := e.addSpent(ctx, id, elapsed, &p); err != nil {
		return err
	}
	return e.ApplyUpdate(ctx, id, p)
}

// Complete marks the task done, stamps completed_at and adds elapsed seconds.
func (e *Engine) Complete(ctx context.Context, id string, elapsed int64) error {
	p := Patch{
		Status:               Set(StatusCompleted),
		CompletedAt:          Set(store.FormatTime(e.now())),
		RemainingTimeSeconds: Null[int64](),
	}
	if err := e.addSpent(ctx, id, elapsed, &p); err != nil {
		return err
	}
	return e.ApplyUpdate(ctx, id, p)
}

// Expire records a session that ran out: elapsed time is added and the
// snapshot is zeroed. Status is left alone.
func (e *Engine) Expire(ctx context.Context, id string, elapsed int64) error {
	p := Patch{RemainingTimeSeconds: Set[int64](0)}
	if err := e.addSpent(ctx, id, elapsed, &p); err != nil {
		return err
	}
	return e.ApplyUpdate(ctx, id, p)
}

func (e *Engine) Archive(ctx context.Context, id string) error {
	return e.ApplyUpdate(ctx, id, Patch{Status: Set(StatusArchived)})
}

// Restore moves the task back to the inbox and clears completed_at.
func (e *Engine) Restore(ctx context.Context, id string) error {
	return e.ApplyUpdate(ctx, id, Patch{
		Status:      Set(StatusInbox),
		CompletedAt: Null[string](),
	})
}

func (e *Engine) addSpent(ctx context.Context, id string, elapsed int64, p *Patch) error {
	if elapsed < 0 {
		return store.Invalidf("elapsed must be >= 0, got %d", elapsed)
	}
	if elapsed == 0 {
		return nil
	}
	var total int64
	err := e.store.QueryOne(ctx, `SELECT total_time_spent FROM tbl_task WHERE id = ?`, []any{id}, &total)
	if err != nil {
		return taskErr(id, err)
	}
	p.TotalTimeSpent = Set(total + elapsed)
	return nil
}
