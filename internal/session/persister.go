package session

import (
	"context"
	"sync"
	"time"
)

// DefaultSaveDelay is the idle time after the last mutation before a save.
const DefaultSaveDelay = time.Second

// SyncStatus reports how the local state relates to the remote copy.
type SyncStatus struct {
	Loaded      bool      `json:"loaded"`
	Dirty       bool      `json:"dirty"`
	LastSavedAt time.Time `json:"last_saved_at,omitempty"`
	Warning     string    `json:"warning,omitempty"`
}

// persister is a trailing-edge debounce with a readiness gate. Every touch
// re-arms a single timer; nothing is written until markReady is called.
type persister struct {
	delay time.Duration
	save  func(ctx context.Context) error
	now   func() time.Time

	mu     sync.Mutex
	timer  *time.Timer
	ready  bool
	dirty  bool
	closed bool
	status SyncStatus

	saveMu sync.Mutex
}

func newPersister(delay time.Duration, now func() time.Time, save func(ctx context.Context) error) *persister {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &persister{delay: delay, save: save, now: now}
}

// touch records a local mutation and re-arms the timer.
func (p *persister) touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
	if p.ready && !p.closed {
		p.armLocked()
	}
}

func (p *persister) armLocked() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.delay, func() {
		_ = p.flush(context.Background())
	})
}

// markReady opens the gate after the initial load. warning is kept as the
// sync status when the load degraded to defaults.
func (p *persister) markReady(warning string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = true
	p.status.Loaded = true
	p.status.Warning = warning
	if p.dirty && !p.closed {
		p.armLocked()
	}
}

// flush saves now if there is anything unsaved. On failure the state stays
// dirty so the next touch or close retries.
func (p *persister) flush(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	if !p.ready || !p.dirty {
		p.mu.Unlock()
		return nil
	}
	p.dirty = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	err := p.save(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.dirty = true
		p.status.Warning = "sync failed: " + err.Error()
		return err
	}
	p.status.LastSavedAt = p.now()
	p.status.Warning = ""
	return nil
}

// close stops the timer and performs a final synchronous flush.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return p.flush(ctx)
}

func (p *persister) syncStatus() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Dirty = p.dirty
	return s
}
