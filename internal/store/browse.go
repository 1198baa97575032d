package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

const defaultBrowseLimit = 100

var tableNamePattern = regexp.MustCompile(`^tbl_[a-z_]+$`)

// TableRow is one row of the generic table browser.
type TableRow struct {
	Columns []string `json:"columns"`
	Values  []any    `json:"values"`
}

// Tables lists the application tables present in the file.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	var tables []string
	err := s.QueryMany(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name LIKE 'tbl_%'
		ORDER BY name
	`, nil, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		tables = append(tables, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// BrowseTable returns raw rows of an application table. The name is
// checked against the known schema before it reaches any statement.
func (s *Store) BrowseTable(ctx context.Context, table string, limit, offset int) ([]TableRow, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultBrowseLimit
	}
	if offset < 0 {
		return nil, Invalidf("negative offset %d", offset)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT ? OFFSET ?", table), limit, offset)
	if err != nil {
		return nil, storageErr("browse "+table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, storageErr("browse columns", err)
	}

	var result []TableRow
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storageErr("browse scan", err)
		}
		values := make([]any, len(columns))
		for i, v := range raw {
			values[i] = browseValue(v)
		}
		result = append(result, TableRow{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("browse iterate", err)
	}
	return result, nil
}

// ValidateTableName accepts only tables declared in the schema.
func ValidateTableName(table string) error {
	if !tableNamePattern.MatchString(table) {
		return Invalidf("invalid table name %q", table)
	}
	if _, ok := tableColumns[table]; !ok {
		return Invalidf("unknown table %q", table)
	}
	return nil
}

func browseValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return fmt.Sprintf("[blob %d bytes]", len(val))
	default:
		return val
	}
}
