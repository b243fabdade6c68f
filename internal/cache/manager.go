package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Manager looks entries up in memory first, then on disk, promoting disk hits
// into memory. Writes go to both levels.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config

	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates both levels.
type ManagerStats struct {
	Hits       int64
	Misses     int64
	MemoryHits int64
	DiskHits   int64
	Cleanups   int64
	LastClean  time.Time
	Memory     Stats
	Disk       Stats
}

// NewManager opens the disk level in cfg.Dir and starts the cleanup loop if
// cfg.CleanupInterval is set.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory not set")
	}
	disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("open disk cache: %w", err)
	}

	m := &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		cfg:    cfg,
		stop:   make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 && cfg.MaxAge > 0 {
		m.stopped.Add(1)
		go m.cleanupLoop()
	}
	return m, nil
}

// Get returns the PCM cached for k.
func (m *Manager) Get(k Key) ([]byte, bool) {
	key := k.String()

	if data, ok := m.memory.Get(key); ok {
		m.count(func(s *ManagerStats) { s.Hits++; s.MemoryHits++ })
		return data, true
	}
	if data, ok := m.disk.Get(key); ok {
		m.count(func(s *ManagerStats) { s.Hits++; s.DiskHits++ })
		if err := m.memory.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
			log.Debug("Cache promotion failed", "key", key, "err", err)
		}
		return data, true
	}

	m.count(func(s *ManagerStats) { s.Misses++ })
	return nil, false
}

// Put caches data for k. Items too large for one level are still kept by the
// other.
func (m *Manager) Put(k Key, data []byte) error {
	key := k.String()

	var errs []error
	if err := m.memory.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if err := m.disk.Put(key, data); err != nil && !errors.Is(err, ErrItemTooLarge) {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	}
	return errors.Join(errs...)
}

// Delete removes k from both levels.
func (m *Manager) Delete(k Key) {
	key := k.String()
	m.memory.Delete(key)
	m.disk.Delete(key)
}

// Cleanup prunes entries older than the configured max age.
func (m *Manager) Cleanup() int {
	if m.cfg.MaxAge <= 0 {
		return 0
	}
	n := m.memory.Prune(m.cfg.MaxAge) + m.disk.Prune(m.cfg.MaxAge)
	m.count(func(s *ManagerStats) {
		s.Cleanups++
		s.LastClean = time.Now()
	})
	if n > 0 {
		log.Debug("Pruned cache entries", "count", n, "disk", humanize.Bytes(uint64(m.disk.Size())))
	}
	return n
}

func (m *Manager) cleanupLoop() {
	defer m.stopped.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// Stats returns counters for both levels.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()
	s.Memory = m.memory.Stats()
	s.Disk = m.disk.Stats()
	return s
}

// Close stops the cleanup loop and writes the disk index.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.stop)
		m.stopped.Wait()
		m.memory.Clear()
		err = m.disk.Close()
	})
	return err
}

func (m *Manager) count(fn func(*ManagerStats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}
