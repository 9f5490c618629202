package session

import (
	"context"
	"sync"
	"time"

	"finai/internal/cache"
	"finai/internal/log"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize = 256
	DefaultIdleTTL   = 30 * time.Minute
	closeTimeout     = 10 * time.Second
)

// Manager keeps the sessions of active users in memory. Sessions idle for
// longer than the TTL, or pushed out by newer ones, are flushed and closed
// once no caller holds them.
type Manager struct {
	deps   Deps
	logger *log.Logger
	cache  *cache.LRUCache[*Session]
	group  singleflight.Group

	mu   sync.Mutex
	live map[string]*entry
}

// entry tracks a session from open until its final save has finished. It
// outlives the cache slot, so a user is never loaded while an older session
// of theirs is still writing.
type entry struct {
	sess    *Session
	refs    int
	evicted bool
	closing bool
	done    chan struct{}
}

func NewManager(deps Deps, size int, ttl time.Duration) *Manager {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	m := &Manager{
		deps:   deps,
		logger: deps.Logger.WithComponent(log.ComponentSession),
		live:   make(map[string]*entry),
	}
	m.cache = cache.NewLRUCache[*Session](size, ttl).OnEvict(m.evict)
	return m
}

// Cache is registered with a cache.Manager for periodic expiry.
func (m *Manager) Cache() cache.Cleaner { return m.cache }

// Acquire returns the user's live session, opening it on first use, and a
// release func the caller must run when done. A held session is not closed
// by eviction until it is released.
func (m *Manager) Acquire(ctx context.Context, userID, userName string) (*Session, func(), error) {
	for {
		s, err := m.get(ctx, userID, userName)
		if err != nil {
			return nil, nil, err
		}
		if release, ok := m.lease(userID, s); ok {
			return s, release, nil
		}
		// s started closing between lookup and lease; the next round waits
		// for it and opens a fresh one.
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
}

// Get returns the user's live session without holding it.
func (m *Manager) Get(ctx context.Context, userID, userName string) (*Session, error) {
	s, release, err := m.Acquire(ctx, userID, userName)
	if err != nil {
		return nil, err
	}
	release()
	return s, nil
}

// get finds or opens the session. Concurrent calls for the same user share
// one load.
func (m *Manager) get(ctx context.Context, userID, userName string) (*Session, error) {
	if s, ok := m.cache.Get(userID); ok {
		return s, nil
	}
	v, err, _ := m.group.Do(userID, func() (any, error) {
		if s, ok := m.cache.Get(userID); ok {
			return s, nil
		}
		if s, ok := m.reusable(userID); ok {
			return s, nil
		}
		if err := m.waitClosed(ctx, userID); err != nil {
			return nil, err
		}
		s, err := Open(context.WithoutCancel(ctx), userID, userName, m.deps)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.live[userID] = &entry{sess: s, done: make(chan struct{})}
		m.mu.Unlock()
		m.cache.Set(userID, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// reusable returns a session that left the cache but is still held by a
// caller and therefore not closed yet.
func (m *Manager) reusable(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live[userID]
	if !ok || e.closing {
		return nil, false
	}
	return e.sess, true
}

// lease takes a reference on s. It fails when s is no longer the user's
// live session or has started closing. An evicted session that is leased
// again goes back into the cache.
func (m *Manager) lease(userID string, s *Session) (func(), bool) {
	m.mu.Lock()
	e, ok := m.live[userID]
	if !ok || e.sess != s || e.closing {
		m.mu.Unlock()
		return nil, false
	}
	e.refs++
	revived := e.evicted
	e.evicted = false
	m.mu.Unlock()

	if revived {
		m.cache.Set(userID, s)
	}
	var once sync.Once
	return func() { once.Do(func() { m.release(userID, e) }) }, true
}

func (m *Manager) release(userID string, e *entry) {
	m.mu.Lock()
	e.refs--
	closeNow := e.refs == 0 && e.evicted && !e.closing
	if closeNow {
		e.closing = true
	}
	m.mu.Unlock()
	if closeNow {
		m.finish(userID, e)
	}
}

// waitClosed blocks until a closing session of userID has finished its
// final save, so the next open reads what it wrote.
func (m *Manager) waitClosed(ctx context.Context, userID string) error {
	m.mu.Lock()
	e, ok := m.live[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) evict(userID string, s *Session) {
	m.mu.Lock()
	e, ok := m.live[userID]
	if !ok || e.sess != s {
		m.mu.Unlock()
		return
	}
	e.evicted = true
	closeNow := e.refs == 0 && !e.closing
	if closeNow {
		e.closing = true
	}
	m.mu.Unlock()

	if closeNow {
		m.finish(userID, e)
		return
	}
	m.logger.Debug("Evicted session still in use, closing on release", log.FieldUserID, userID)
}

// finish flushes and closes the session, then forgets it.
func (m *Manager) finish(userID string, e *entry) {
	defer func() {
		m.mu.Lock()
		if m.live[userID] == e {
			delete(m.live, userID)
		}
		m.mu.Unlock()
		close(e.done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := e.sess.Close(ctx); err != nil {
		log.NewStructuredLogger(m.logger).LogError(ctx, "Session closed with unsaved changes", err,
			log.ComponentSession, log.OpShutdown, log.NewFields().WithUser(userID))
		return
	}
	m.logger.DebugContext(ctx, "Session evicted", log.FieldUserID, userID)
}

// Len is the number of cached sessions.
func (m *Manager) Len() int { return m.cache.Size() }

// Close flushes and closes every live session. Sessions still held close
// when released; Close waits for them up to closeTimeout.
func (m *Manager) Close() {
	n := m.cache.Drain()

	m.mu.Lock()
	pending := make([]chan struct{}, 0, len(m.live))
	for _, e := range m.live {
		pending = append(pending, e.done)
	}
	m.mu.Unlock()

	timeout := time.NewTimer(closeTimeout)
	defer timeout.Stop()
	for _, done := range pending {
		select {
		case <-done:
		case <-timeout.C:
			m.logger.Warn("Timed out waiting for sessions in use", log.FieldOperation, log.OpShutdown)
			return
		}
	}
	m.logger.Info("Sessions closed", log.FieldOperation, log.OpShutdown, "count", n)
}
