package store

import (
	"context"
	"errors"
	"os"
	"strings"
)

// FileStatus describes a database file without keeping it open.
type FileStatus struct {
	Path       string   `json:"path"`
	Configured bool     `json:"configured"`
	Exists     bool     `json:"exists"`
	SizeBytes  int64    `json:"sizeBytes"`
	Tables     []string `json:"tables,omitempty"`
}

// Status inspects path without changing it. A missing file is reported, not
// treated as an error.
func Status(ctx context.Context, path string) (FileStatus, error) {
	st := FileStatus{Path: path, Configured: strings.TrimSpace(path) != ""}
	if !st.Configured {
		return st, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, storageErr("stat "+path, err)
	}
	st.Exists = true
	st.SizeBytes = info.Size()

	s, err := openReadOnly(path)
	if err != nil {
		return st, err
	}
	defer s.Close()
	st.Tables, err = s.Tables(ctx)
	return st, err
}
