package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Setting is one key/value row of tbl_setting.
type Setting struct {
	ID        string  `json:"id"`
	Key       string  `json:"key"`
	Value     *string `json:"value"`
	UpdatedAt string  `json:"updatedAt"`
}

// Setting returns the stored value for key; ok is false when the key is absent.
func (s *Store) Setting(ctx context.Context, key string) (value string, ok bool, err error) {
	var v sql.NullString
	err = s.QueryOne(ctx, `SELECT value FROM tbl_setting WHERE key = ?`, []any{key}, &v)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return Invalidf("setting key is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tbl_setting (id, key, value, updated_at)
		VALUES ('setting_' || ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, key, value, s.stamp())
	return storageErr("set setting", err)
}

func (s *Store) Settings(ctx context.Context) ([]Setting, error) {
	var out []Setting
	err := s.QueryMany(ctx, `SELECT id, key, value, updated_at FROM tbl_setting ORDER BY key`, nil,
		func(rows *sql.Rows) error {
			var (
				st Setting
				v  sql.NullString
			)
			if err := rows.Scan(&st.ID, &st.Key, &v, &st.UpdatedAt); err != nil {
				return err
			}
			if v.Valid {
				st.Value = &v.String
			}
			out = append(out, st)
			return nil
		})
	return out, err
}
