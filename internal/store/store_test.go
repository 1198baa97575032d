package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mirumi.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func schemaSnapshot(t *testing.T, s *Store) map[string][]string {
	t.Helper()
	ctx := context.Background()
	tables, err := s.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables error: %v", err)
	}
	snap := make(map[string][]string)
	for _, table := range tables {
		var cols []string
		err := s.QueryMany(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", []any{table},
			func(rows *sql.Rows) error {
				var name string
				if err := rows.Scan(&name); err != nil {
					return err
				}
				cols = append(cols, name)
				return nil
			})
		if err != nil {
			t.Fatalf("table info %s: %v", table, err)
		}
		snap[table] = cols
	}
	return snap
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.QueryOne(context.Background(), "SELECT COUNT(*) FROM "+table, nil, &n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestOpen_EmptyPathNotConfigured(t *testing.T) {
	if _, err := Open("  "); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Open(\"\") error = %v, want ErrNotConfigured", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	before := schemaSnapshot(t, s)
	settingsBefore := countRows(t, s, TableSetting)

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("third Migrate error: %v", err)
	}

	after := schemaSnapshot(t, s)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("schema changed across migrations:\nbefore=%v\nafter=%v", before, after)
	}
	if got := countRows(t, s, TableSetting); got != settingsBefore {
		t.Errorf("settings rows = %d after re-migrate, want %d", got, settingsBefore)
	}
	if settingsBefore != len(defaultSettings) {
		t.Errorf("seeded %d settings, want %d", settingsBefore, len(defaultSettings))
	}
	for table := range tableColumns {
		if _, ok := after[table]; !ok {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestMigrate_RecordsSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	v, ok, err := s.Setting(context.Background(), "schema_version")
	if err != nil || !ok {
		t.Fatalf("Setting(schema_version) = %q, %v, %v", v, ok, err)
	}
	if v != "2" {
		t.Errorf("schema_version = %q, want 2", v)
	}
}

func TestMigrate_KeepsUserSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SetSetting(ctx, "theme", `"dark"`); err != nil {
		t.Fatalf("SetSetting error: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	v, _, err := s.Setting(ctx, "theme")
	if err != nil {
		t.Fatalf("Setting error: %v", err)
	}
	if v != `"dark"` {
		t.Errorf("theme = %q, want user value kept", v)
	}
}

func TestMigrate_BackfillsLegacyColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE tbl_task (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		url TEXT,
		priority TEXT NOT NULL DEFAULT 'MEDIUM',
		status TEXT NOT NULL DEFAULT 'INBOX',
		total_time_spent INTEGER NOT NULL DEFAULT 0,
		expected_duration INTEGER DEFAULT 5,
		target_date TEXT,
		is_important INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		completed_at TEXT
	)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := raw.Exec(`INSERT INTO tbl_task (id, title) VALUES ('old', 'legacy row')`); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	_ = raw.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open legacy error: %v", err)
	}
	defer s.Close()

	cols := schemaSnapshot(t, s)[TableTask]
	for _, want := range []string{"slack_message_id", "remaining_time_seconds", "last_paused_at", "last_run_at"} {
		if !containsString(cols, want) {
			t.Errorf("column %s not backfilled; have %v", want, cols)
		}
	}

	var title string
	if err := s.QueryOne(context.Background(), "SELECT title FROM tbl_task WHERE id = ?", []any{"old"}, &title); err != nil {
		t.Fatalf("legacy row lost: %v", err)
	}
	if title != "legacy row" {
		t.Errorf("title = %q", title)
	}
}

func TestGateway_InsertPatchDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Insert(ctx, TableTask, []Field{
		{Column: "id", Value: "t1"},
		{Column: "title", Value: "first"},
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	if err := s.Patch(ctx, TableTask, "t1", []Field{{Column: "title", Value: "renamed"}}); err != nil {
		t.Fatalf("Patch error: %v", err)
	}
	var title string
	if err := s.QueryOne(ctx, "SELECT title FROM tbl_task WHERE id = ?", []any{"t1"}, &title); err != nil {
		t.Fatalf("QueryOne error: %v", err)
	}
	if title != "renamed" {
		t.Errorf("title = %q, want renamed", title)
	}

	if err := s.Patch(ctx, TableTask, "missing", []Field{{Column: "title", Value: "x"}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Patch missing error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, TableTask, "t1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := s.Delete(ctx, TableTask, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if err := s.QueryOne(ctx, "SELECT title FROM tbl_task WHERE id = ?", []any{"t1"}, &title); !errors.Is(err, ErrNotFound) {
		t.Errorf("QueryOne after delete error = %v, want ErrNotFound", err)
	}
}

func TestGateway_RejectsUnknownIdentifiers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		run  func() error
	}{
		{"unknown table", func() error {
			return s.Insert(ctx, "tbl_task; DROP TABLE tbl_task", []Field{{Column: "id", Value: "x"}})
		}},
		{"unknown column", func() error {
			return s.Insert(ctx, TableTask, []Field{{Column: "id = 1 --", Value: "x"}})
		}},
		{"empty patch", func() error {
			return s.Patch(ctx, TableTask, "x", nil)
		}},
		{"unknown predicate", func() error {
			return s.DeleteWhere(ctx, TableTag, []Field{{Column: "1=1 OR tag", Value: "x"}})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestGateway_StorageFailureIsTyped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Insert(ctx, TableMemo, []Field{
		{Column: "id", Value: "m1"},
		{Column: "task_id", Value: "no-such-task"},
		{Column: "content", Value: "orphan"},
	})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
	if !strings.Contains(se.Op, TableMemo) {
		t.Errorf("Op = %q, want mention of %s", se.Op, TableMemo)
	}
}

func TestGateway_CascadeDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(s.Insert(ctx, TableTask, []Field{{Column: "id", Value: "t1"}, {Column: "title", Value: "parent"}}))
	must(s.Insert(ctx, TableTag, []Field{{Column: "id", Value: "g1"}, {Column: "task_id", Value: "t1"}, {Column: "tag", Value: "go"}}))
	must(s.Insert(ctx, TableMemo, []Field{{Column: "id", Value: "m1"}, {Column: "task_id", Value: "t1"}, {Column: "content", Value: "memo"}}))
	must(s.Insert(ctx, TableRunHistory, []Field{
		{Column: "id", Value: "r1"}, {Column: "task_id", Value: "t1"},
		{Column: "started_at", Value: "2026-01-01 00:00:00.000000"}, {Column: "end_type", Value: "running"},
	}))

	must(s.Delete(ctx, TableTask, "t1"))

	for _, table := range []string{TableTag, TableMemo, TableRunHistory} {
		if n := countRows(t, s, table); n != 0 {
			t.Errorf("%s has %d rows after parent delete", table, n)
		}
	}
}

func TestTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Tx(ctx, func(tx *Tx) error {
		if err := tx.Insert(ctx, TableTask, []Field{{Column: "id", Value: "t1"}, {Column: "title", Value: "x"}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx error = %v, want boom", err)
	}
	if n := countRows(t, s, TableTask); n != 0 {
		t.Errorf("task rows = %d after rollback, want 0", n)
	}
}

func TestBrowseTable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows, err := s.BrowseTable(ctx, TableSetting, 2, 0)
	if err != nil {
		t.Fatalf("BrowseTable error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if !reflect.DeepEqual(rows[0].Columns, tableColumns[TableSetting]) {
		t.Errorf("columns = %v", rows[0].Columns)
	}

	for _, bad := range []string{"sqlite_master", "tbl_task; DROP TABLE tbl_task", "tbl_unknown", "TBL_TASK", ""} {
		if _, err := s.BrowseTable(ctx, bad, 10, 0); !errors.Is(err, ErrValidation) {
			t.Errorf("BrowseTable(%q) error = %v, want ErrValidation", bad, err)
		}
	}
	if _, err := s.BrowseTable(ctx, TableTask, 10, -1); !errors.Is(err, ErrValidation) {
		t.Errorf("negative offset error = %v, want ErrValidation", err)
	}
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Setting(ctx, "missing"); err != nil || ok {
		t.Fatalf("Setting(missing) ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "timer_default_minutes", "25"); err != nil {
		t.Fatalf("SetSetting error: %v", err)
	}
	v, ok, err := s.Setting(ctx, "timer_default_minutes")
	if err != nil || !ok || v != "25" {
		t.Fatalf("Setting = %q, %v, %v", v, ok, err)
	}
	all, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings error: %v", err)
	}
	if len(all) != len(defaultSettings) {
		t.Errorf("settings = %d, want %d (upsert must not duplicate)", len(all), len(defaultSettings))
	}
	if err := s.SetSetting(ctx, " ", "x"); !errors.Is(err, ErrValidation) {
		t.Errorf("blank key error = %v, want ErrValidation", err)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	st, err := Status(ctx, "")
	if err != nil || st.Configured {
		t.Fatalf("Status(\"\") = %+v, %v", st, err)
	}

	path := filepath.Join(t.TempDir(), "missing.db")
	st, err = Status(ctx, path)
	if err != nil {
		t.Fatalf("Status(missing) error: %v", err)
	}
	if !st.Configured || st.Exists {
		t.Errorf("Status(missing) = %+v", st)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	_ = s.Close()

	st, err = Status(ctx, path)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if !st.Exists || st.SizeBytes == 0 {
		t.Errorf("Status = %+v, want existing non-empty file", st)
	}
	if len(st.Tables) != len(tableColumns) {
		t.Errorf("tables = %v, want %d", st.Tables, len(tableColumns))
	}
}

func TestStatus_DoesNotMigrate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "foreign.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE tbl_custom (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	st, err := Status(ctx, path)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if !reflect.DeepEqual(st.Tables, []string{"tbl_custom"}) {
		t.Errorf("tables = %v, want only tbl_custom", st.Tables)
	}

	again, err := Status(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Tables, []string{"tbl_custom"}) || again.SizeBytes != st.SizeBytes {
		t.Errorf("second status = %+v, file changed after first %+v", again, st)
	}
}
