// Package cache keeps recently computed values, such as monthly aggregates,
// in memory with a size bound and a TTL.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is a cache whose expired entries can be dropped in bulk.
type Cleaner interface {
	CleanExpired() int
	Size() int
}

var _ Cleaner = (*LRUCache[int])(nil)

// Manager sweeps registered caches on an interval so expired entries do
// not linger until their next Get.
type Manager struct {
	mu      sync.Mutex
	caches  []Cleaner
	logger  *slog.Logger
	stop    chan struct{}
	done    chan struct{}
	running bool
	once    sync.Once
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	m.caches = append(m.caches, c)
	m.mu.Unlock()
}

// StartCleanup starts the sweep loop. Later calls are no-ops.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	go m.loop(interval)
}

// CleanNow sweeps once and returns the number of dropped entries.
func (m *Manager) CleanNow() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	dropped := 0
	for _, c := range caches {
		dropped += c.CleanExpired()
	}
	return dropped
}

// Entries is the total size of the registered caches.
func (m *Manager) Entries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.caches {
		n += c.Size()
	}
	return n
}

func (m *Manager) loop(interval time.Duration) {
	defer close(m.done)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n, "remaining", m.Entries())
			}
		}
	}
}

// Stop ends the sweep loop and waits for it. Safe to call repeatedly and
// before StartCleanup.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.stop)
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if running {
			<-m.done
		}
	})
}
