package session

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sevenitynet/reliefboard/storage"
)

// DefaultCacheSize is the number of client stores kept in memory by default.
const DefaultCacheSize = 4096

type entry struct {
	store *Store
	once  sync.Once
}

// Manager owns one Store per client. Stores live in a bounded in-memory cache over a
// shared durable storage; each client's keys are scoped under "client:<id>". A Store
// evicted from the cache is rebuilt from storage on the client's next request, exactly
// like an application reload restores its session.
//
// An evicted Store may still be in use by a request. It is retired: a login or logout
// made through it drops whichever Store has replaced it, so the client's next request
// sees storage again. Manager.mu may be taken while a Store's lock is held, never the
// other way round.
type Manager struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry]
	base    storage.Storage
	backend Backend
	opts    []Option
	flights singleflight.Group
	logger  *slog.Logger
}

// NewManager creates a Manager. size <= 0 selects DefaultCacheSize.
func NewManager(base storage.Storage, b Backend, size int, opts ...Option) (*Manager, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	m := &Manager{
		base:    base,
		backend: b,
		opts:    opts,
		logger:  slog.Default(),
	}

	cache, err := lru.NewWithEvict(size, func(_ string, e *entry) {
		e.store.retire()
	})
	if err != nil {
		return nil, err
	}
	m.entries = cache

	return m, nil
}

// Get returns the Store of clientID, creating and initializing it on first use.
// Initialization errors are logged; the returned Store is then unauthenticated.
func (m *Manager) Get(ctx context.Context, clientID string) *Store {
	m.mu.Lock()
	e, ok := m.entries.Get(clientID)
	if !ok {
		opts := append([]Option{WithFlightGroup(&m.flights), withStaleWrite(func(stale *Store) {
			m.forget(clientID, stale)
		})}, m.opts...)
		e = &entry{
			store: NewStore(storage.Scope(m.base, "client:"+clientID), m.backend, opts...),
		}
		m.entries.Add(clientID, e)
	}
	m.mu.Unlock()

	e.once.Do(func() {
		if err := e.store.Initialize(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("session: initialize client", "client_id", clientID, "error", err)
		}
	})

	return e.store
}

// forget drops clientID's cached Store unless it is stale itself.
func (m *Manager) forget(clientID string, stale *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries.Peek(clientID); ok && e.store != stale {
		m.entries.Remove(clientID)
		m.logger.Debug("session: dropped store replaced after eviction", "client_id", clientID)
	}
}

// Len returns the number of stores currently held in memory.
func (m *Manager) Len() int {
	return m.entries.Len()
}
