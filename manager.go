package kv

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"github.com/puzpuzpuz/xsync/v3"
)

// Manager keeps at most one open environment per canonical path. Opening a
// path that is already open returns another Handle on the same Store.
type Manager struct {
	envs *xsync.MapOf[string, *entry]
}

type entry struct {
	store *Store
	mu    sync.RWMutex
	refs  int
}

func NewManager() *Manager {
	return &Manager{envs: xsync.NewMapOf[string, *entry]()}
}

var defaultManager = NewManager()

// DefaultManager returns the process wide Manager used by Open.
func DefaultManager() *Manager { return defaultManager }

// Open opens cfg with the default Manager.
func Open(cfg *Config) (*Handle, error) {
	return defaultManager.Open(cfg)
}

// Open returns a Handle on the environment at cfg.Path, opening it when no
// Handle on that path is alive. A path already open with an incompatible
// configuration fails with ErrManagerConflict.
func (m *Manager) Open(cfg *Config) (*Handle, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	path, err := canonicalPath(cfg.Path, cfg.ReadOnly)
	if err != nil {
		return nil, engineError("resolve path", err)
	}

	c := cfg.clone()
	c.Path = path

	var openErr error
	e, _ := m.envs.Compute(path, func(old *entry, loaded bool) (*entry, bool) {
		if loaded {
			if err := old.store.compatible(cfg); err != nil {
				old.store.log.Warn("conflicting open", "err", err)
				openErr = err
				return old, false
			}
			old.refs++
			return old, false
		}

		s, err := openStore(c)
		if err != nil {
			openErr = err
			return nil, true
		}
		return &entry{store: s, refs: 1}, false
	})
	if openErr != nil {
		return nil, openErr
	}
	return &Handle{m: m, path: path, e: e}, nil
}

func (m *Manager) acquire(path string, e *entry) bool {
	var ok bool
	m.envs.Compute(path, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			return nil, true
		}
		if old == e {
			old.refs++
			ok = true
		}
		return old, false
	})
	return ok
}

func (m *Manager) release(path string, e *entry) error {
	var closeErr error
	m.envs.Compute(path, func(old *entry, loaded bool) (*entry, bool) {
		if !loaded {
			return nil, true
		}
		if old != e {
			return old, false
		}

		old.refs--
		if old.refs > 0 {
			return old, false
		}
		closeErr = old.store.close()
		return nil, true
	})
	return closeErr
}

// Len returns the number of open environments.
func (m *Manager) Len() int {
	return m.envs.Size()
}

// Handle is a reference to a shared Store. The Store stays open until the
// last Handle on it is closed.
type Handle struct {
	m      *Manager
	path   string
	e      *entry
	closed atomic.Bool
}

// Read runs fn with shared access to the Store.
func (h *Handle) Read(fn func(s *Store) error) error {
	h.e.mu.RLock()
	defer h.e.mu.RUnlock()

	if h.closed.Load() {
		return ErrHandleClosed
	}
	return fn(h.e.store)
}

// Write runs fn with exclusive access to the Store.
func (h *Handle) Write(fn func(s *Store) error) error {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()

	if h.closed.Load() {
		return ErrHandleClosed
	}
	return fn(h.e.store)
}

// Clone returns a new Handle on the same Store.
func (h *Handle) Clone() (*Handle, error) {
	if h.closed.Load() || !h.m.acquire(h.path, h.e) {
		return nil, ErrHandleClosed
	}
	return &Handle{m: h.m, path: h.path, e: h.e}, nil
}

// Close releases the Handle. Closing the last Handle on a Store closes the
// environment. Close is idempotent.
//
// Close waits for Read and Write callbacks running on the Store to return,
// so it must not be called from inside one of them.
func (h *Handle) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.m.release(h.path, h.e)
}

// Path returns the canonical path of the environment.
func (h *Handle) Path() string { return h.path }

// EnvID identifies the open environment. Handles sharing a Store report the
// same id; reopening after the last Close yields a new one.
func (h *Handle) EnvID() uuid.UUID { return h.e.store.id }
