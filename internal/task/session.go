package task

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stellarlinkco/mirumi/internal/store"
)

// SessionRecorder writes run history and time extensions. Pairing
// StartSession with EndSession is up to the caller.
type SessionRecorder struct {
	deps
}

func NewSessionRecorder(s *store.Store, opts ...Option) *SessionRecorder {
	return &SessionRecorder{deps: newDeps(s, opts)}
}

// StartSession opens a run row and stamps the task's last_run_at.
func (r *SessionRecorder) StartSession(ctx context.Context, taskID string) (string, error) {
	id := r.newID()
	stamp := store.FormatTime(r.now())
	err := r.store.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.Patch(ctx, store.TableTask, taskID, []store.Field{{Column: "last_run_at", Value: stamp}}); err != nil {
			return taskErr(taskID, err)
		}
		return tx.Insert(ctx, store.TableRunHistory, []store.Field{
			{Column: "id", Value: id},
			{Column: "task_id", Value: taskID},
			{Column: "started_at", Value: stamp},
			{Column: "duration", Value: 0},
			{Column: "end_type", Value: string(EndRunning)},
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession closes a run with its final duration and terminal end type.
func (r *SessionRecorder) EndSession(ctx context.Context, runID string, endType EndType, durationSeconds int64) error {
	if endType == EndRunning {
		return store.Invalidf("a session cannot end as %s", EndRunning)
	}
	if durationSeconds < 0 {
		return store.Invalidf("duration must be >= 0, got %d", durationSeconds)
	}
	err := r.store.Patch(ctx, store.TableRunHistory, runID, []store.Field{
		{Column: "ended_at", Value: store.FormatTime(r.now())},
		{Column: "duration", Value: durationSeconds},
		{Column: "end_type", Value: string(ParseEndType(string(endType)))},
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.NotFoundf("run %s", runID)
	}
	return err
}

// OpenSession returns the most recently started unfinished run of the task.
func (r *SessionRecorder) OpenSession(ctx context.Context, taskID string) (*RunHistory, error) {
	var runs []RunHistory
	err := r.store.QueryMany(ctx, `
		SELECT id, task_id, started_at, ended_at, duration, end_type
		FROM tbl_task_run_history
		WHERE task_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC, rowid DESC LIMIT 1
	`, []any{taskID}, func(rows *sql.Rows) error {
		run, err := scanRun(rows)
		if err != nil {
			return err
		}
		runs = append(runs, run)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, store.NotFoundf("open run for task %s", taskID)
	}
	return &runs[0], nil
}

type ExtendInput struct {
	TaskID           string  `json:"taskId"`
	AddedMinutes     int64   `json:"addedMinutes"`
	PreviousDuration int64   `json:"previousDuration"`
	NewDuration      int64   `json:"newDuration"`
	Reason           *string `json:"reason,omitempty"`
}

// ExtendTime records the extension and sets the task's expected duration in
// one transaction.
func (r *SessionRecorder) ExtendTime(ctx context.Context, in ExtendInput) (string, error) {
	if in.NewDuration < 1 {
		return "", store.Invalidf("new duration must be at least 1 minute, got %d", in.NewDuration)
	}
	if in.PreviousDuration < 0 {
		return "", store.Invalidf("previous duration must be >= 0, got %d", in.PreviousDuration)
	}
	id := r.newID()
	stamp := store.FormatTime(r.now())
	err := r.store.Tx(ctx, func(tx *store.Tx) error {
		err := tx.Patch(ctx, store.TableTask, in.TaskID, []store.Field{
			{Column: "updated_at", Value: stamp},
			{Column: "expected_duration", Value: in.NewDuration},
		})
		if err != nil {
			return taskErr(in.TaskID, err)
		}
		return tx.Insert(ctx, store.TableTimeExtension, []store.Field{
			{Column: "id", Value: id},
			{Column: "task_id", Value: in.TaskID},
			{Column: "added_minutes", Value: in.AddedMinutes},
			{Column: "previous_duration", Value: in.PreviousDuration},
			{Column: "new_duration", Value: in.NewDuration},
			{Column: "reason", Value: nullable(in.Reason)},
			{Column: "created_at", Value: stamp},
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
