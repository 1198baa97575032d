package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// TimeLayout is how every timestamp column is written. It sorts lexically
// and is understood by SQLite's date functions.
const TimeLayout = "2006-01-02 15:04:05.000000"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Store is the single local datastore. It allows one open connection so
// every call is serialized against the file.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Field is one column assignment or equality predicate.
type Field struct {
	Column string
	Value  any
}

func Open(path string) (*Store, error) {
	return OpenWithClock(path, time.Now)
}

// OpenWithClock opens (creating if needed) the database at path and migrates it.
func OpenWithClock(path string, now func() time.Time) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNotConfigured
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: now}
	if err := s.db.Ping(); err != nil {
		_ = db.Close()
		return nil, storageErr("open sqlite", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dsn applies the pragmas on every pooled connection, not just the first.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// openReadOnly opens an existing file for inspection. It neither creates
// nor migrates anything.
func openReadOnly(path string) (*Store, error) {
	q := url.Values{}
	q.Add("mode", "ro")
	q.Add("_pragma", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, storageErr("open sqlite", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) stamp() string {
	return FormatTime(s.now())
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx exposes the gateway primitives inside one transaction.
type Tx struct {
	tx *sql.Tx
}

// Tx runs fn in a transaction, committing when it returns nil.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, table string, fields []Field) error {
	return insert(ctx, s.db, table, fields, false)
}

// InsertOrIgnore inserts unless a uniqueness constraint already holds the row.
func (s *Store) InsertOrIgnore(ctx context.Context, table string, fields []Field) error {
	return insert(ctx, s.db, table, fields, true)
}

// Patch assigns fields on the row with the given id.
func (s *Store) Patch(ctx context.Context, table, id string, fields []Field) error {
	return patch(ctx, s.db, table, id, fields)
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	return deleteWhere(ctx, s.db, table, []Field{{Column: "id", Value: id}}, true)
}

// DeleteWhere removes every row matching all predicates. Matching nothing is not an error.
func (s *Store) DeleteWhere(ctx context.Context, table string, where []Field) error {
	return deleteWhere(ctx, s.db, table, where, false)
}

// QueryOne scans a single row, mapping an empty result to ErrNotFound.
func (s *Store) QueryOne(ctx context.Context, query string, args []any, dest ...any) error {
	return queryOne(ctx, s.db, query, args, dest...)
}

// QueryMany calls scan once per row.
func (s *Store) QueryMany(ctx context.Context, query string, args []any, scan func(rows *sql.Rows) error) error {
	return queryMany(ctx, s.db, query, args, scan)
}

func (t *Tx) Insert(ctx context.Context, table string, fields []Field) error {
	return insert(ctx, t.tx, table, fields, false)
}

func (t *Tx) InsertOrIgnore(ctx context.Context, table string, fields []Field) error {
	return insert(ctx, t.tx, table, fields, true)
}

func (t *Tx) Patch(ctx context.Context, table, id string, fields []Field) error {
	return patch(ctx, t.tx, table, id, fields)
}

func (t *Tx) Delete(ctx context.Context, table, id string) error {
	return deleteWhere(ctx, t.tx, table, []Field{{Column: "id", Value: id}}, true)
}

func (t *Tx) QueryOne(ctx context.Context, query string, args []any, dest ...any) error {
	return queryOne(ctx, t.tx, query, args, dest...)
}

func (t *Tx) QueryMany(ctx context.Context, query string, args []any, scan func(rows *sql.Rows) error) error {
	return queryMany(ctx, t.tx, query, args, scan)
}

func checkColumns(table string, fields []Field) error {
	cols, ok := tableColumns[table]
	if !ok {
		return Invalidf("unknown table %q", table)
	}
	if len(fields) == 0 {
		return Invalidf("no fields for %s", table)
	}
	for _, f := range fields {
		if !containsString(cols, f.Column) {
			return Invalidf("unknown column %s.%s", table, f.Column)
		}
	}
	return nil
}

func insert(ctx context.Context, q querier, table string, fields []Field, ignore bool) error {
	if err := checkColumns(table, fields); err != nil {
		return err
	}
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
		marks[i] = "?"
		args[i] = f.Value
	}
	verb := "INSERT"
	if ignore {
		verb = "INSERT OR IGNORE"
	}
	stmt := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return storageErr("insert "+table, err)
	}
	return nil
}

func patch(ctx context.Context, q querier, table, id string, fields []Field) error {
	if err := checkColumns(table, fields); err != nil {
		return err
	}
	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets[i] = f.Column + " = ?"
		args = append(args, f.Value)
	}
	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return storageErr("patch "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("patch "+table, err)
	}
	if n == 0 {
		return NotFoundf("%s %s", table, id)
	}
	return nil
}

func deleteWhere(ctx context.Context, q querier, table string, where []Field, mustMatch bool) error {
	if err := checkColumns(table, where); err != nil {
		return err
	}
	conds := make([]string, len(where))
	args := make([]any, len(where))
	for i, f := range where {
		conds[i] = f.Column + " = ?"
		args[i] = f.Value
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(conds, " AND "))
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return storageErr("delete "+table, err)
	}
	if !mustMatch {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete "+table, err)
	}
	if n == 0 {
		return NotFoundf("%s %v", table, args[0])
	}
	return nil
}

func queryOne(ctx context.Context, q querier, query string, args []any, dest ...any) error {
	err := q.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return storageErr("query", err)
}

func queryMany(ctx context.Context, q querier, query string, args []any, scan func(rows *sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return storageErr("query", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return storageErr("scan", err)
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("iterate", err)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
