package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/stellarlinkco/mirumi/internal/config"
	"github.com/stellarlinkco/mirumi/internal/store"
	"github.com/stellarlinkco/mirumi/internal/task"
)

// Datastore tracks which database file is in use. Until one is initialised
// or loaded every task operation fails with store.ErrNotConfigured.
type Datastore struct {
	mu       sync.RWMutex
	cfg      *config.Config
	save     func(*config.Config) error
	taskOpts []task.Option

	store    *store.Store
	engine   *task.Engine
	sessions *task.SessionRecorder
}

// DBStatus is the datastore file as seen from the config.
type DBStatus struct {
	store.FileStatus
	Open bool `json:"open"`
}

// NewDatastore wraps cfg. save persists config changes; nil uses
// config.SaveConfig.
func NewDatastore(cfg *config.Config, save func(*config.Config) error, opts ...task.Option) *Datastore {
	if save == nil {
		save = config.SaveConfig
	}
	return &Datastore{cfg: cfg, save: save, taskOpts: opts}
}

// Open opens the configured file, if any. No configured path is not an error.
func (d *Datastore) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	path := strings.TrimSpace(d.cfg.Store.DBPath)
	if path == "" || d.store != nil {
		return nil
	}
	return d.openLocked(path)
}

func (d *Datastore) openLocked(path string) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Printf("[gateway] close previous datastore: %v", err)
		}
	}
	d.store = s
	d.engine = task.NewEngine(s, d.taskOpts...)
	d.sessions = task.NewSessionRecorder(s, d.taskOpts...)
	log.Printf("[gateway] datastore open: %s", path)
	return nil
}

// Status reports the configured file, or the default location when none is.
func (d *Datastore) Status(ctx context.Context) (DBStatus, error) {
	d.mu.RLock()
	path := strings.TrimSpace(d.cfg.Store.DBPath)
	open := d.store != nil
	d.mu.RUnlock()

	if path == "" {
		return DBStatus{FileStatus: store.FileStatus{Path: config.DefaultDBPath()}}, nil
	}
	st, err := store.Status(ctx, path)
	return DBStatus{FileStatus: st, Open: open}, err
}

// InitDB creates (or migrates) the database at path and makes it current.
// An empty path uses config.DefaultDBPath.
func (d *Datastore) InitDB(ctx context.Context, path string) (DBStatus, error) {
	if strings.TrimSpace(path) == "" {
		path = config.DefaultDBPath()
	}
	if err := d.use(path); err != nil {
		return DBStatus{}, err
	}
	return d.Status(ctx)
}

// LoadDB switches to an existing database file.
func (d *Datastore) LoadDB(ctx context.Context, path string) (DBStatus, error) {
	if strings.TrimSpace(path) == "" {
		return DBStatus{}, store.Invalidf("path is required")
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return DBStatus{}, store.NotFoundf("database file %s", path)
	}
	if err != nil {
		return DBStatus{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DBStatus{}, store.Invalidf("%s is a directory", path)
	}
	if err := d.use(path); err != nil {
		return DBStatus{}, err
	}
	return d.Status(ctx)
}

func (d *Datastore) use(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openLocked(path); err != nil {
		return err
	}
	d.cfg.Store.DBPath = path
	if err := d.save(d.cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Logout closes the datastore and forgets its path. The file is kept.
func (d *Datastore) Logout() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var closeErr error
	if d.store != nil {
		closeErr = d.store.Close()
		d.store, d.engine, d.sessions = nil, nil, nil
	}
	d.cfg.Store.DBPath = ""
	if err := d.save(d.cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	log.Printf("[gateway] datastore closed")
	return closeErr
}

func (d *Datastore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store, d.engine, d.sessions = nil, nil, nil
	return err
}

func (d *Datastore) Store() (*store.Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.store == nil {
		return nil, store.ErrNotConfigured
	}
	return d.store, nil
}

func (d *Datastore) Tasks() (*task.Engine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.engine == nil {
		return nil, store.ErrNotConfigured
	}
	return d.engine, nil
}

func (d *Datastore) Sessions() (*task.SessionRecorder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.sessions == nil {
		return nil, store.ErrNotConfigured
	}
	return d.sessions, nil
}
