package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/conversation"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/graph"
	"github.com/aretw0/intake/pkg/orchestrator"
	"github.com/aretw0/intake/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a session.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	states *conversation.Registry
	graph  *graph.Graph
	store  ports.ConversationStore

	mu       sync.Mutex
	locks    map[string]*lockEntry
	sessions map[string]*orchestrator.Orchestrator

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	opts    []orchestrator.Option
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) { m.locker = locker }
}

// WithLockTTL sets the expiration of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager and its conversations.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithOrchestratorOptions adds options applied to every conversation, such as
// a telemetry sink or lifecycle hooks.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// NewManager creates a Session Manager. A nil store keeps sessions in memory only.
func NewManager(states *conversation.Registry, g *graph.Graph, store ports.ConversationStore, opts ...Option) *Manager {
	if store == nil {
		store = memory.NewStore()
	}
	m := &Manager{
		states:   states,
		graph:    g,
		store:    store,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*orchestrator.Orchestrator),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// local runs fn holding the in-process lock of the session.
func (m *Manager) local(sessionID string, fn func() error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()
	return fn()
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	return m.local(sessionID, func() error {
		if m.locker != nil {
			unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
			if err != nil {
				return fmt.Errorf("failed to acquire distributed lock: %w", err)
			}
			defer m.unlock(sessionID, unlock)
		}
		return fn(ctx)
	})
}

func (m *Manager) unlock(sessionID string, unlock ports.UnlockFunc) {
	// The caller's context may already be done; the lock must still be released.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlock(ctx); err != nil {
		m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
			"session_id", sessionID,
			"err", err,
		)
	}
}

func (m *Manager) newOrchestrator() *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(m.logger),
		orchestrator.WithStore(m.store),
	}
	if m.locker != nil {
		opts = append(opts, orchestrator.WithGuard(func(ctx context.Context, sessionID string) (func(), error) {
			unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
			if err != nil {
				return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
			}
			return func() { m.unlock(sessionID, unlock) }, nil
		}))
	}
	return orchestrator.New(m.states, m.graph, append(opts, m.opts...)...)
}

func (m *Manager) cached(sessionID string) (*orchestrator.Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[sessionID]
	return o, ok
}

func (m *Manager) put(sessionID string, o *orchestrator.Orchestrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o == nil {
		delete(m.sessions, sessionID)
		return
	}
	m.sessions[sessionID] = o
}

// lookup returns the conversation of a session, resuming it from the store
// when this process does not hold it.
func (m *Manager) lookup(ctx context.Context, sessionID string) (*orchestrator.Orchestrator, error) {
	if o, ok := m.cached(sessionID); ok {
		return o, nil
	}
	var o *orchestrator.Orchestrator
	err := m.local(sessionID, func() error {
		if cached, ok := m.cached(sessionID); ok {
			o = cached
			return nil
		}
		snap, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		o = m.newOrchestrator()
		if err := o.Restore(ctx, snap); err != nil {
			return err
		}
		m.put(sessionID, o)
		m.logger.Info("Session resumed", "session_id", sessionID, "state", snap.State, "sequence", snap.Sequence)
		return nil
	})
	return o, err
}

// Start begins a new conversation for sessionID, replacing any previous one,
// and returns the opening message.
func (m *Manager) Start(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	// The distributed lock is taken by the orchestrator once it owns the turn
	// queue, the same order ProcessTurn uses.
	var msg string
	err := m.local(sessionID, func() error {
		o, ok := m.cached(sessionID)
		if !ok {
			o = m.newOrchestrator()
		}
		var err error
		msg, err = o.Start(ctx, sessionID)
		if err != nil {
			return err
		}
		m.put(sessionID, o)
		return nil
	})
	return msg, err
}

// ProcessTurn advances the conversation of sessionID with one caller input.
// It returns domain.ErrSessionNotFound for unknown sessions.
// Input is sanitized first; oversized or malformed input is rejected.
func (m *Manager) ProcessTurn(ctx context.Context, sessionID, input string) (string, error) {
	input, err := SanitizeInput(input)
	if err != nil {
		return "", err
	}
	o, err := m.lookup(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return o.ProcessTurn(ctx, input)
}

// Reset restarts the conversation of sessionID from the initial state and
// returns the new opening message.
func (m *Manager) Reset(ctx context.Context, sessionID string) (string, error) {
	if _, err := m.lookup(ctx, sessionID); err != nil {
		return "", err
	}
	var msg string
	err := m.local(sessionID, func() error {
		o, ok := m.cached(sessionID)
		if !ok {
			return domain.ErrSessionNotFound
		}
		if err := o.Reset(ctx); err != nil {
			return err
		}
		var err error
		msg, err = o.Start(ctx, sessionID)
		return err
	})
	return msg, err
}

// Delete forgets the session, here and in the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.put(sessionID, nil)
		return m.store.Delete(ctx, sessionID)
	})
}

// List returns the IDs of every persisted session, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Inspect returns the current snapshot of a session.
func (m *Manager) Inspect(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if o, ok := m.cached(sessionID); ok {
		return o.Snapshot(ctx)
	}
	return m.store.Load(ctx, sessionID)
}

// Active returns the number of sessions held in memory.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Store returns the underlying conversation store.
func (m *Manager) Store() ports.ConversationStore {
	return m.store
}
