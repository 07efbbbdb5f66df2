// Package breaker guards the decomposition loop against retrying a
// structurally-unsolvable task indefinitely. State is in-memory only and
// keyed by task id; there is no cross-process sharing.
package breaker

import (
	"sync"
	"time"
)

type Config struct {
	MaxAttempts int
	MaxFailures int
	Cooldown    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		MaxFailures: 2,
		Cooldown:    30 * time.Second,
	}
}

type entry struct {
	attempts    int
	failures    int
	lastAttempt time.Time
}

type Breaker struct {
	cfg Config
	mu  sync.RWMutex
	// entries keyed by task id
	entries map[string]*entry
	now     func() time.Time
}

func New(cfg Config) *Breaker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// CanAttempt reports whether decomposition of taskID may proceed. It returns
// false while the cooldown since the last attempt has not elapsed, or once
// the attempt or failure budget is spent.
func (b *Breaker) CanAttempt(taskID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[taskID]
	if !ok {
		return true
	}
	if !e.lastAttempt.IsZero() && b.now().Sub(e.lastAttempt) < b.cfg.Cooldown {
		return false
	}
	if e.attempts >= b.cfg.MaxAttempts {
		return false
	}
	if e.failures >= b.cfg.MaxFailures {
		return false
	}
	return true
}

func (b *Breaker) RecordAttempt(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(taskID)
	e.attempts++
	e.lastAttempt = b.now()
}

func (b *Breaker) RecordFailure(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(taskID).failures++
}

// RecordSuccess clears all counters for taskID. Calling it twice has the same
// effect as once.
func (b *Breaker) RecordSuccess(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, taskID)
}

// Reset clears state for one task id, or for every task id when called with
// the empty string.
func (b *Breaker) Reset(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if taskID == "" {
		b.entries = make(map[string]*entry)
		return
	}
	delete(b.entries, taskID)
}

// entry returns the record for taskID, creating it if needed. Callers must
// hold the write lock.
func (b *Breaker) entry(taskID string) *entry {
	e, ok := b.entries[taskID]
	if !ok {
		e = &entry{}
		b.entries[taskID] = e
	}
	return e
}
