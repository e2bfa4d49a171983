// Package cache provides a generic in-process cache with LRU eviction
// and TTL expiry, plus a manager that sweeps expired entries in the
// background.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is the read/write surface shared by cache implementations.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is any cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps expired entries out of every registered
// cache until Stop is called.
type Manager struct {
	mu       sync.Mutex
	cleaners []Cleaner

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewManager() *Manager {
	return &Manager{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register adds a cache to the sweep set. Call before StartCleanup.
func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaners = append(m.cleaners, c)
}

// StartCleanup launches the background sweep loop.
func (m *Manager) StartCleanup(interval time.Duration) {
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	cleaners := m.cleaners
	m.mu.Unlock()

	removed := 0
	for _, c := range cleaners {
		removed += c.CleanExpired()
	}
	if removed > 0 {
		slog.Debug("Cache sweep removed expired entries", "removed", removed)
	}
}

// Stop ends the sweep loop and waits for it to exit. Safe to call more
// than once.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.stop)
		<-m.done
	})
}
