package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the level's capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("cache closed")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-process LRU.
	LevelMemory Level = iota
	// LevelDisk is the persistent compressed store.
	LevelDisk
)

func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds counters for one level.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
	LastEvict time.Time
}

func (s *Stats) rate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Key identifies one synthesized utterance. Every field that changes the
// audio is part of the key.
type Key struct {
	Engine     string
	Voice      string
	Rate       int
	Pitch      int
	WaitFactor float64
	Text       string
}

// String returns the hashed cache key.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d|%.2f|%s", k.Engine, k.Voice, k.Rate, k.Pitch, k.WaitFactor, k.Text)))
	return hex.EncodeToString(sum[:16])
}

// Config sizes the levels.
type Config struct {
	MemoryCapacity   int64         // Bytes
	DiskCapacity     int64         // Bytes
	Dir              string        // Directory for the disk level
	CompressionLevel int           // zstd level, 0 disables compression
	MaxAge           time.Duration // Entries older than this are pruned, 0 keeps forever
	CleanupInterval  time.Duration // How often to prune, 0 disables the cleanup loop
}

// DefaultConfig returns the sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   32 * 1024 * 1024,
		DiskCapacity:     256 * 1024 * 1024,
		CompressionLevel: 3,
		MaxAge:           7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}
