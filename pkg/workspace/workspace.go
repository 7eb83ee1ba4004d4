// Package workspace implements the per-workspace lifecycle of spec §4.10:
// opening and caching one backing file per named workspace, the
// set-once collection-type tag, enumeration, cross-workspace move, and
// drop. It is the engine's only caller of pkg/store.Open — every other
// package receives an already-open *bolt.Tx.
package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/pkg/kv"
	"github.com/kvstash/kvstash/pkg/kverrors"
	"github.com/kvstash/kvstash/pkg/store"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const fileSuffix = ".db"

// ValidateName enforces spec §3's "alphanumeric plus _/-" workspace name
// rule.
func ValidateName(name string) error {
	if name == "" || !namePattern.MatchString(name) {
		return kverrors.New(kverrors.ErrValidation, "workspace name must be alphanumeric plus _/-").WithWorkspace(name)
	}
	return nil
}

// Manager owns every open workspace file and the name of the caller's
// currently active workspace (external state per spec §4.10 — the engine
// itself is stateless across calls beyond this).
type Manager struct {
	dataDir string
	timeout time.Duration

	mu     sync.Mutex
	open   map[string]*store.Store
	active string
}

// NewManager roots workspace files under dataDir, opened with the given
// per-file lock-acquisition timeout.
func NewManager(dataDir string, timeout time.Duration) *Manager {
	return &Manager{
		dataDir: dataDir,
		timeout: timeout,
		open:    make(map[string]*store.Store),
	}
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dataDir, name+fileSuffix)
}

// Open returns the backing store for name, opening and caching it on
// first use. Callers hold the returned *store.Store across multiple
// operations; Manager does not close it until Drop or Close.
func (m *Manager) Open(name string) (*store.Store, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.open[name]; ok {
		return s, nil
	}

	if err := os.MkdirAll(m.dataDir, 0o700); err != nil {
		return nil, err
	}

	s, err := store.Open(m.path(name), m.timeout)
	if err != nil {
		return nil, err
	}
	m.open[name] = s
	return s, nil
}

// Use records name as the caller's active workspace, opening it if
// necessary.
func (m *Manager) Use(name string) (*store.Store, error) {
	s, err := m.Open(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active = name
	m.mu.Unlock()
	return s, nil
}

// Active returns the name of the currently active workspace, or "" if
// none has been selected yet.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// List enumerates workspaces by scanning the data directory for backing
// files, sorted by name.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// SetType sets a workspace's collection-type tag. Per spec §3 the type is
// set at most once: a later call with a different value fails.
func SetType(tx *bolt.Tx, typ string) error {
	meta := tx.Bucket([]byte(store.BucketMetadata))
	existing := meta.Get([]byte(store.MetaWorkspaceType))
	if existing != nil && string(existing) != typ {
		return kverrors.New(kverrors.ErrValidation, "workspace type already set to "+string(existing))
	}
	return meta.Put([]byte(store.MetaWorkspaceType), []byte(typ))
}

// Type returns a workspace's collection-type tag, or "" if unset.
func Type(tx *bolt.Tx) (string, error) {
	raw := tx.Bucket([]byte(store.BucketMetadata)).Get([]byte(store.MetaWorkspaceType))
	if raw == nil {
		return "", nil
	}
	return string(raw), nil
}

// Drop removes a workspace's backing file. It refuses to drop the
// currently active workspace unless force is set.
func (m *Manager) Drop(name string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == m.active && !force {
		return kverrors.New(kverrors.ErrValidation, "refusing to drop the active workspace without force").WithWorkspace(name)
	}

	if s, ok := m.open[name]; ok {
		if err := s.Close(); err != nil {
			return err
		}
		delete(m.open, name)
	}

	if name == m.active {
		m.active = ""
	}

	err := os.Remove(m.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// OpenCount returns the number of workspace files currently held open.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Close closes every open workspace file, releasing their locks.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, s := range m.open {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.open, name)
	}
	return firstErr
}

// MoveOverwritePolicy controls what Move does when key already exists in
// the target workspace.
type MoveOverwritePolicy int

const (
	MoveAbortIfExists MoveOverwritePolicy = iota
	MoveOverwrite
)

// Move atomically relocates key from source to target: read+write the
// target first, then delete from source, each its own transaction. If the
// target write fails, nothing is deleted from source. If the delete from
// source fails after a successful target write, the target write is
// rolled back by deleting the just-written key, so neither copy nor loss
// is left half-done.
func Move(source, target *store.Store, key string, policy MoveOverwritePolicy, now time.Time) error {
	var entry kv.Entry
	var found bool

	err := source.View(func(tx *bolt.Tx) error {
		var err error
		entry, found, err = kv.Get(tx, key)
		return err
	})
	if err != nil {
		return err
	}
	if !found {
		return kverrors.New(kverrors.ErrNotFound, "key not found in source workspace").WithKey(key)
	}

	if policy == MoveAbortIfExists {
		var targetFound bool
		viewErr := target.View(func(tx *bolt.Tx) error {
			var e error
			_, targetFound, e = kv.Get(tx, key)
			return e
		})
		if viewErr != nil {
			return viewErr
		}
		if targetFound {
			return kverrors.New(kverrors.ErrValidation, "key already exists in target workspace").WithKey(key)
		}
	}

	if err := target.Update(func(tx *bolt.Tx) error {
		_, _, err := kv.Save(tx, key, entry.Value, now, entry.ExpiresAt)
		return err
	}); err != nil {
		return err
	}

	if err := source.Update(func(tx *bolt.Tx) error {
		return kv.Delete(tx, key)
	}); err != nil {
		_ = target.Update(func(tx *bolt.Tx) error {
			return kv.Delete(tx, key)
		})
		return err
	}

	return nil
}
