package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
)

// SchemaVersion is recorded in tbl_setting after every successful migration.
const SchemaVersion = 2

const (
	TableSetting       = "tbl_setting"
	TableTask          = "tbl_task"
	TableTag           = "tbl_task_tag"
	TableMemo          = "tbl_task_memo"
	TableNote          = "tbl_task_note"
	TableRunHistory    = "tbl_task_run_history"
	TableTimeExtension = "tbl_task_time_extension"
	TableActionHistory = "tbl_task_action_history"
)

// tableColumns is the allow-list every generic statement is checked against.
var tableColumns = map[string][]string{
	TableSetting: {"id", "key", "value", "updated_at"},
	TableTask: {
		"id", "title", "description", "url", "slack_message_id", "priority", "status",
		"total_time_spent", "expected_duration", "remaining_time_seconds", "target_date",
		"is_important", "created_at", "updated_at", "completed_at", "last_paused_at", "last_run_at",
	},
	TableTag:           {"id", "task_id", "tag", "created_at"},
	TableMemo:          {"id", "task_id", "content", "created_at"},
	TableNote:          {"id", "task_id", "title", "content", "created_at", "updated_at"},
	TableRunHistory:    {"id", "task_id", "started_at", "ended_at", "duration", "end_type"},
	TableTimeExtension: {"id", "task_id", "added_minutes", "previous_duration", "new_duration", "reason", "created_at"},
	TableActionHistory: {"id", "task_id", "action_type", "previous_status", "new_status", "metadata", "created_at"},
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tbl_setting (
		id TEXT PRIMARY KEY,
		key TEXT UNIQUE NOT NULL,
		value TEXT,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_setting_key ON tbl_setting(key)`,
	`CREATE TABLE IF NOT EXISTS tbl_task (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		url TEXT,
		slack_message_id TEXT,
		priority TEXT NOT NULL DEFAULT 'MEDIUM',
		status TEXT NOT NULL DEFAULT 'INBOX',
		total_time_spent INTEGER NOT NULL DEFAULT 0,
		expected_duration INTEGER DEFAULT 5,
		remaining_time_seconds INTEGER,
		target_date TEXT,
		is_important INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		completed_at TEXT,
		last_paused_at TEXT,
		last_run_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_status ON tbl_task(status)`,
	`CREATE INDEX IF NOT EXISTS idx_task_priority ON tbl_task(priority)`,
	`CREATE INDEX IF NOT EXISTS idx_task_target_date ON tbl_task(target_date)`,
	`CREATE INDEX IF NOT EXISTS idx_task_is_important ON tbl_task(is_important)`,
	`CREATE TABLE IF NOT EXISTS tbl_task_tag (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(task_id) REFERENCES tbl_task(id) ON DELETE CASCADE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_task_tag_task_tag ON tbl_task_tag(task_id, tag)`,
	`CREATE INDEX IF NOT EXISTS idx_task_tag_tag ON tbl_task_tag(tag)`,
	`CREATE TABLE IF NOT EXISTS tbl_task_memo (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(task_id) REFERENCES tbl_task(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_memo_task_id ON tbl_task_memo(task_id)`,
	`CREATE TABLE IF NOT EXISTS tbl_task_note (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(task_id) REFERENCES tbl_task(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_note_task_id ON tbl_task_note(task_id)`,
	`CREATE TABLE IF NOT EXISTS tbl_task_run_history (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		end_type TEXT NOT NULL,
		FOREIGN KEY(task_id) REFERENCES tbl_task(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_run_history_task_id ON tbl_task_run_history(task_id)`,
	`CREATE TABLE IF NOT EXISTS tbl_task_time_extension (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		added_minutes INTEGER NOT NULL,
		previous_duration INTEGER NOT NULL,
		new_duration INTEGER NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(task_id) REFERENCES tbl_task(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_time_extension_task_id ON tbl_task_time_extension(task_id)`,
	`CREATE TABLE IF NOT EXISTS tbl_task_action_history (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		previous_status TEXT,
		new_status TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY(task_id) REFERENCES tbl_task(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_action_history_task_id ON tbl_task_action_history(task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_action_history_action_type ON tbl_task_action_history(action_type)`,
	`CREATE INDEX IF NOT EXISTS idx_task_action_history_created_at ON tbl_task_action_history(created_at)`,
}

// Columns that older installations were created without.
var backfillColumns = []struct {
	table  string
	column string
	ddl    string
}{
	{table: TableTask, column: "slack_message_id", ddl: "TEXT"},
	{table: TableTask, column: "remaining_time_seconds", ddl: "INTEGER"},
	{table: TableTask, column: "last_paused_at", ddl: "TEXT"},
	{table: TableTask, column: "last_run_at", ddl: "TEXT"},
}

var defaultSettings = []struct {
	key   string
	value string
}{
	{"schema_version", "1"},
	{"theme", `"system"`},
	{"language", `"ko"`},
	{"timer_default_minutes", "5"},
	{"notification_sound", "true"},
	{"notification_vibration", "true"},
}

// Migrate brings the schema up to date. It is idempotent and runs on every open.
func (s *Store) Migrate(ctx context.Context) error {
	return s.Tx(ctx, func(tx *Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
				return storageErr("init schema", err)
			}
		}
		if err := backfill(ctx, tx.tx); err != nil {
			return err
		}
		return seedSettings(ctx, tx.tx, s.stamp())
	})
}

func backfill(ctx context.Context, tx *sql.Tx) error {
	existing := make(map[string]map[string]bool)
	for _, b := range backfillColumns {
		cols, ok := existing[b.table]
		if !ok {
			var err error
			cols, err = tableInfo(ctx, tx, b.table)
			if err != nil {
				return err
			}
			existing[b.table] = cols
		}
		if cols[b.column] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", b.table, b.column, b.ddl)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storageErr("add "+b.table+"."+b.column, err)
		}
		cols[b.column] = true
		log.Printf("[store] added column %s.%s", b.table, b.column)
	}
	return nil
}

func tableInfo(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, storageErr("table info "+table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, storageErr("scan table info", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate table info", err)
	}
	return cols, nil
}

func seedSettings(ctx context.Context, tx *sql.Tx, now string) error {
	for _, d := range defaultSettings {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tbl_setting (id, key, value, updated_at)
			VALUES ('setting_' || ?, ?, ?, ?)
		`, d.key, d.key, d.value, now)
		if err != nil {
			return storageErr("seed setting "+d.key, err)
		}
	}
	version := strconv.Itoa(SchemaVersion)
	_, err := tx.ExecContext(ctx, `
		UPDATE tbl_setting SET value = ?, updated_at = ?
		WHERE key = 'schema_version' AND CAST(value AS INTEGER) < ?
	`, version, now, SchemaVersion)
	if err != nil {
		return storageErr("record schema version", err)
	}
	return nil
}
