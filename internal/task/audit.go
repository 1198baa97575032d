package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stellarlinkco/mirumi/internal/store"
)

// ErrAuditIncomplete is returned when a task change was saved but one or
// more of its audit entries could not be written. The change is kept.
var ErrAuditIncomplete = errors.New("audit trail incomplete")

type auditEntry struct {
	kind     ActionKind
	prev     *string
	next     *string
	metadata any
}

// newAction builds the stored form of an audit entry.
func newAction(id, taskID string, e auditEntry, at time.Time) (ActionHistory, error) {
	a := ActionHistory{
		ID:             id,
		TaskID:         taskID,
		ActionType:     e.kind,
		PreviousStatus: e.prev,
		NewStatus:      e.next,
		CreatedAt:      store.FormatTime(at),
	}
	if e.metadata != nil {
		raw, err := json.Marshal(e.metadata)
		if err != nil {
			return a, fmt.Errorf("encode %s metadata: %w", e.kind, err)
		}
		a.Metadata = raw
	}
	return a, nil
}

func (a ActionHistory) fields() []store.Field {
	var meta any
	if len(a.Metadata) > 0 {
		meta = string(a.Metadata)
	}
	return []store.Field{
		{Column: "id", Value: a.ID},
		{Column: "task_id", Value: a.TaskID},
		{Column: "action_type", Value: string(a.ActionType)},
		{Column: "previous_status", Value: nullable(a.PreviousStatus)},
		{Column: "new_status", Value: nullable(a.NewStatus)},
		{Column: "metadata", Value: meta},
		{Column: "created_at", Value: a.CreatedAt},
	}
}

// diffAudit decides which audit entries a patch produces against the
// previously stored status and target date. It never touches storage.
func diffAudit(prevStatus string, prevTarget *string, p *Patch) []auditEntry {
	var out []auditEntry
	if next, ok := p.Status.Get(); ok && string(next) != prevStatus {
		prev, to := prevStatus, string(next)
		out = append(out, auditEntry{
			kind: ActionForStatus(next),
			prev: &prev,
			next: &to,
		})
	}
	if p.TargetDate.Present() {
		next := p.TargetDate.Ptr()
		if !sameDate(prevTarget, next) {
			out = append(out, auditEntry{
				kind:     ActionTargetDateChanged,
				metadata: TargetDateChange{Previous: prevTarget, New: next},
			})
		}
	}
	return out
}

func sameDate(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// record appends entries one by one. Every entry is attempted even after a
// failure; the combined error is wrapped with ErrAuditIncomplete.
func (e *Engine) record(ctx context.Context, taskID string, entries []auditEntry) error {
	var errs []error
	for _, entry := range entries {
		a, err := newAction(e.newID(), taskID, entry, e.now())
		if err == nil {
			err = e.store.Insert(ctx, store.TableActionHistory, a.fields())
		}
		if err != nil {
			log.Printf("[task] audit %s for %s not recorded: %v", entry.kind, taskID, err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrAuditIncomplete, errors.Join(errs...))
}

// nullable turns a nil pointer into a SQL NULL argument.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
