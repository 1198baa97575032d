package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/mirumi/internal/store"
)

type deps struct {
	store *store.Store
	now   func() time.Time
	newID func() string
}

// Option configures an Engine or SessionRecorder.
type Option func(*deps)

// WithClock overrides the time source used for every stamped column.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// WithIDs overrides row id generation.
func WithIDs(newID func() string) Option {
	return func(d *deps) { d.newID = newID }
}

func newDeps(s *store.Store, opts []Option) deps {
	d := deps{
		store: s,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Engine owns every task mutation and the audit entries derived from them.
type Engine struct {
	deps
}

func NewEngine(s *store.Store, opts ...Option) *Engine {
	return &Engine{deps: newDeps(s, opts)}
}

type CreateInput struct {
	Title            string   `json:"title"`
	Description      *string  `json:"description,omitempty"`
	URL              *string  `json:"url,omitempty"`
	ExternalRef      *string  `json:"externalRef,omitempty"`
	Priority         Priority `json:"priority,omitempty"`
	ExpectedDuration *int64   `json:"expectedDuration,omitempty"`
	TargetDate       *string  `json:"targetDate,omitempty"`
	IsImportant      bool     `json:"isImportant,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// Create stores a new task in INBOX with its tags and returns its id.
func (e *Engine) Create(ctx context.Context, in CreateInput) (string, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "", store.Invalidf("title is required")
	}
	priority := PriorityMedium
	if in.Priority != "" {
		p, err := ParsePriority(string(in.Priority))
		if err != nil {
			return "", err
		}
		priority = p
	}
	expected := int64(DefaultExpectedMinutes)
	if in.ExpectedDuration != nil {
		if *in.ExpectedDuration < 0 {
			return "", store.Invalidf("expectedDuration must be >= 0, got %d", *in.ExpectedDuration)
		}
		expected = *in.ExpectedDuration
	}

	id := e.newID()
	stamp := store.FormatTime(e.now())
	err := e.store.Tx(ctx, func(tx *store.Tx) error {
		err := tx.Insert(ctx, store.TableTask, []store.Field{
			{Column: "id", Value: id},
			{Column: "title", Value: title},
			{Column: "description", Value: nullable(in.Description)},
			{Column: "url", Value: nullable(in.URL)},
			{Column: "slack_message_id", Value: nullable(in.ExternalRef)},
			{Column: "priority", Value: string(priority)},
			{Column: "status", Value: string(StatusInbox)},
			{Column: "total_time_spent", Value: 0},
			{Column: "expected_duration", Value: expected},
			{Column: "target_date", Value: nullable(in.TargetDate)},
			{Column: "is_important", Value: boolToInt(in.IsImportant)},
			{Column: "created_at", Value: stamp},
			{Column: "updated_at", Value: stamp},
		})
		if err != nil {
			return err
		}
		for _, raw := range in.Tags {
			tag, ok := normalizeTag(raw)
			if !ok {
				continue
			}
			if err := tx.InsertOrIgnore(ctx, store.TableTag, tagFields(e.newID(), id, tag, stamp)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	inbox := string(StatusInbox)
	if err := e.record(ctx, id, []auditEntry{{kind: ActionCreated, next: &inbox}}); err != nil {
		return id, err
	}
	return id, nil
}

// ApplyUpdate writes every present patch field in one statement, then
// appends the audit entries the change implies. A failed audit insert does
// not undo the field write; the error then wraps ErrAuditIncomplete.
func (e *Engine) ApplyUpdate(ctx context.Context, id string, p Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var (
		prevStatus string
		prevTarget sql.NullString
	)
	err := e.store.QueryOne(ctx, `SELECT status, target_date FROM tbl_task WHERE id = ?`, []any{id}, &prevStatus, &prevTarget)
	if err != nil {
		return taskErr(id, err)
	}

	if err := e.store.Patch(ctx, store.TableTask, id, p.Fields(e.now())); err != nil {
		return taskErr(id, err)
	}

	var prev *string
	if prevTarget.Valid {
		prev = &prevTarget.String
	}
	return e.record(ctx, id, diffAudit(prevStatus, prev, &p))
}

// Delete removes the task and, by cascade, every child row.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return taskErr(id, e.store.Delete(ctx, store.TableTask, id))
}

func (e *Engine) Get(ctx context.Context, id string) (*Task, error) {
	var tasks []*Task
	err := e.store.QueryMany(ctx, selectTask+` WHERE id = ?`, []any{id}, collectTasks(&tasks))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, store.NotFoundf("task %s", id)
	}
	if err := e.hydrate(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks[0], nil
}

// List returns tasks, important first then newest first, optionally
// restricted to one status.
func (e *Engine) List(ctx context.Context, status *Status) ([]*Task, error) {
	query := selectTask
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY is_important DESC, created_at DESC, rowid DESC`

	tasks := []*Task{}
	if err := e.store.QueryMany(ctx, query, args, collectTasks(&tasks)); err != nil {
		return nil, err
	}
	if err := e.hydrate(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (e *Engine) exists(ctx context.Context, id string) error {
	var one int
	return taskErr(id, e.store.QueryOne(ctx, `SELECT 1 FROM tbl_task WHERE id = ?`, []any{id}, &one))
}

func taskErr(id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.NotFoundf("task %s", id)
	}
	return fmt.Errorf("task %s: %w", id, err)
}

const selectTask = `SELECT id, title, description, url, slack_message_id, priority, status,
	total_time_spent, expected_duration, remaining_time_seconds, target_date, is_important,
	created_at, updated_at, completed_at, last_paused_at, last_run_at FROM tbl_task`

func collectTasks(out *[]*Task) func(*sql.Rows) error {
	return func(rows *sql.Rows) error {
		var (
			t                          Task
			desc, url, ref, target     sql.NullString
			completed, paused, lastRun sql.NullString
			expected, remaining        sql.NullInt64
			priority, status           string
			important                  int
		)
		err := rows.Scan(&t.ID, &t.Title, &desc, &url, &ref, &priority, &status,
			&t.TotalTimeSpent, &expected, &remaining, &target, &important,
			&t.CreatedAt, &t.UpdatedAt, &completed, &paused, &lastRun)
		if err != nil {
			return err
		}
		t.Priority = Priority(priority)
		t.Status = Status(status)
		t.IsImportant = important != 0
		t.Description = nullString(desc)
		t.URL = nullString(url)
		t.ExternalRef = nullString(ref)
		t.TargetDate = nullString(target)
		t.CompletedAt = nullString(completed)
		t.LastPausedAt = nullString(paused)
		t.LastRunAt = nullString(lastRun)
		t.ExpectedDuration = nullInt(expected)
		t.RemainingTimeSeconds = nullInt(remaining)
		t.Tags = []string{}
		t.Memos = []Memo{}
		t.Notes = []Note{}
		t.RunHistory = []RunHistory{}
		t.TimeExtensions = []TimeExtension{}
		t.ActionHistory = []ActionHistory{}
		*out = append(*out, &t)
		return nil
	}
}

// hydrate loads all six child collections for tasks with one query each.
// Rows are collected before anything else touches the store, since the
// store serves a single connection.
func (e *Engine) hydrate(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]*Task, len(tasks))
	args := make([]any, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = t
		args[i] = t.ID
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(tasks)), ",") + ")"

	loaders := []struct {
		query string
		scan  func(*sql.Rows) error
	}{
		{
			`SELECT task_id, tag FROM tbl_task_tag WHERE task_id IN ` + in + ` ORDER BY created_at ASC, rowid ASC`,
			func(rows *sql.Rows) error {
				var taskID, tag string
				if err := rows.Scan(&taskID, &tag); err != nil {
					return err
				}
				byID[taskID].Tags = append(byID[taskID].Tags, tag)
				return nil
			},
		},
		{
			`SELECT id, task_id, content, created_at FROM tbl_task_memo WHERE task_id IN ` + in + ` ORDER BY created_at DESC, rowid DESC`,
			func(rows *sql.Rows) error {
				var m Memo
				if err := rows.Scan(&m.ID, &m.TaskID, &m.Content, &m.CreatedAt); err != nil {
					return err
				}
				byID[m.TaskID].Memos = append(byID[m.TaskID].Memos, m)
				return nil
			},
		},
		{
			`SELECT id, task_id, title, content, created_at, updated_at FROM tbl_task_note WHERE task_id IN ` + in + ` ORDER BY created_at DESC, rowid DESC`,
			func(rows *sql.Rows) error {
				var n Note
				if err := rows.Scan(&n.ID, &n.TaskID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
					return err
				}
				byID[n.TaskID].Notes = append(byID[n.TaskID].Notes, n)
				return nil
			},
		},
		{
			`SELECT id, task_id, started_at, ended_at, duration, end_type FROM tbl_task_run_history WHERE task_id IN ` + in + ` ORDER BY started_at DESC, rowid DESC`,
			func(rows *sql.Rows) error {
				r, err := scanRun(rows)
				if err != nil {
					return err
				}
				byID[r.TaskID].RunHistory = append(byID[r.TaskID].RunHistory, r)
				return nil
			},
		},
		{
			`SELECT id, task_id, added_minutes, previous_duration, new_duration, reason, created_at FROM tbl_task_time_extension WHERE task_id IN ` + in + ` ORDER BY created_at DESC, rowid DESC`,
			func(rows *sql.Rows) error {
				var (
					x      TimeExtension
					reason sql.NullString
				)
				if err := rows.Scan(&x.ID, &x.TaskID, &x.AddedMinutes, &x.PreviousDuration, &x.NewDuration, &reason, &x.CreatedAt); err != nil {
					return err
				}
				x.Reason = nullString(reason)
				byID[x.TaskID].TimeExtensions = append(byID[x.TaskID].TimeExtensions, x)
				return nil
			},
		},
		{
			`SELECT id, task_id, action_type, previous_status, new_status, metadata, created_at FROM tbl_task_action_history WHERE task_id IN ` + in + ` ORDER BY created_at DESC, rowid DESC`,
			func(rows *sql.Rows) error {
				var (
					a              ActionHistory
					kind           string
					prev, next, md sql.NullString
				)
				if err := rows.Scan(&a.ID, &a.TaskID, &kind, &prev, &next, &md, &a.CreatedAt); err != nil {
					return err
				}
				a.ActionType = ActionKind(kind)
				a.PreviousStatus = nullString(prev)
				a.NewStatus = nullString(next)
				if md.Valid && md.String != "" {
					a.Metadata = []byte(md.String)
				}
				byID[a.TaskID].ActionHistory = append(byID[a.TaskID].ActionHistory, a)
				return nil
			},
		},
	}
	for _, l := range loaders {
		if err := e.store.QueryMany(ctx, l.query, args, l.scan); err != nil {
			return err
		}
	}
	return nil
}

func scanRun(rows *sql.Rows) (RunHistory, error) {
	var (
		r       RunHistory
		ended   sql.NullString
		endType string
	)
	if err := rows.Scan(&r.ID, &r.TaskID, &r.StartedAt, &ended, &r.Duration, &endType); err != nil {
		return r, err
	}
	r.EndedAt = nullString(ended)
	r.EndType = ParseEndType(endType)
	return r, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
