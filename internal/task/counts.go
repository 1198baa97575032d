package task

import (
	"context"
	"fmt"
)

// Counts are the sidebar totals.
type Counts struct {
	Inbox     int `json:"inbox"`
	Completed int `json:"completed"`
	Starred   int `json:"starred"`
	Today     int `json:"today"`
	Tomorrow  int `json:"tomorrow"`
	Overdue   int `json:"overdue"`
	Archive   int `json:"archive"`
}

// targetDay is the target date as a local calendar day. Bare dates are used
// as written; timestamps are stored in UTC and shifted to local time.
const targetDay = `CASE WHEN length(target_date) = 10 THEN target_date ELSE date(target_date, 'localtime') END`

const openStatus = `status NOT IN ('COMPLETED', 'ARCHIVED')`

// Counts computes the sidebar totals. Day boundaries follow the engine clock
// in its local zone.
func (e *Engine) Counts(ctx context.Context) (Counts, error) {
	now := e.now().Local()
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	var c Counts
	queries := []struct {
		dest  *int
		where string
		args  []any
	}{
		{&c.Inbox, `status IN ('INBOX', 'IN_PROGRESS', 'PAUSED')`, nil},
		{&c.Completed, `status = 'COMPLETED'`, nil},
		{&c.Starred, `is_important = 1 AND ` + openStatus, nil},
		{&c.Today, `target_date IS NOT NULL AND ` + targetDay + ` = ? AND ` + openStatus, []any{today}},
		{&c.Tomorrow, `target_date IS NOT NULL AND ` + targetDay + ` = ? AND ` + openStatus, []any{tomorrow}},
		{&c.Overdue, `target_date IS NOT NULL AND ` + targetDay + ` < ? AND ` + openStatus, []any{today}},
		{&c.Archive, `status = 'ARCHIVED'`, nil},
	}
	for _, q := range queries {
		if err := e.store.QueryOne(ctx, `SELECT COUNT(*) FROM tbl_task WHERE `+q.where, q.args, q.dest); err != nil {
			return Counts{}, fmt.Errorf("count tasks: %w", err)
		}
	}
	return c, nil
}
