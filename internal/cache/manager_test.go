package cache

import (
	"bytes"
	"testing"
	"time"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestKey_Distinct(t *testing.T) {
	base := Key{Engine: "piper", Voice: "amy", Rate: 50, Pitch: 50, Text: "hello"}
	variants := []Key{
		{Engine: "gtts", Voice: "amy", Rate: 50, Pitch: 50, Text: "hello"},
		{Engine: "piper", Voice: "bob", Rate: 50, Pitch: 50, Text: "hello"},
		{Engine: "piper", Voice: "amy", Rate: 60, Pitch: 50, Text: "hello"},
		{Engine: "piper", Voice: "amy", Rate: 50, Pitch: 40, Text: "hello"},
		{Engine: "piper", Voice: "amy", Rate: 50, Pitch: 50, Text: "hello!"},
		{Engine: "piper", Voice: "amy", Rate: 50, Pitch: 50, WaitFactor: 1, Text: "hello"},
	}
	for _, v := range variants {
		if v.String() == base.String() {
			t.Errorf("key %+v collides with base", v)
		}
	}
	if base.String() != base.String() {
		t.Error("key not stable")
	}
}

func TestManager_GetPromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	k := Key{Engine: "piper", Voice: "amy", Rate: 50, Text: "hello"}
	value := pcmBytes(2048)

	first := newTestManager(t, Config{Dir: dir, MemoryCapacity: 1 << 20, DiskCapacity: 1 << 20, CompressionLevel: 3})
	if err := first.Put(k, value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first.Close()

	m := newTestManager(t, Config{Dir: dir, MemoryCapacity: 1 << 20, DiskCapacity: 1 << 20, CompressionLevel: 3})
	got, ok := m.Get(k)
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("expected disk hit")
	}
	if _, ok := m.Get(k); !ok {
		t.Fatal("expected memory hit")
	}

	s := m.Stats()
	if s.DiskHits != 1 || s.MemoryHits != 1 {
		t.Errorf("disk hits %d, memory hits %d", s.DiskHits, s.MemoryHits)
	}
}

func TestManager_LargeItemKeptOnDisk(t *testing.T) {
	m := newTestManager(t, Config{MemoryCapacity: 16, DiskCapacity: 1 << 20})
	k := Key{Text: "long"}

	if err := m.Put(k, make([]byte, 64)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := m.Get(k); !ok {
		t.Fatal("expected hit from disk")
	}
	if s := m.Stats(); s.Memory.Items != 0 {
		t.Errorf("memory should not hold oversize item, has %d", s.Memory.Items)
	}
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t, Config{MemoryCapacity: 1 << 10, DiskCapacity: 1 << 10})
	k := Key{Text: "bye"}
	m.Put(k, []byte("data"))
	m.Delete(k)
	if _, ok := m.Get(k); ok {
		t.Fatal("deleted key still cached")
	}
}

func TestManager_CleanupLoop(t *testing.T) {
	m := newTestManager(t, Config{
		MemoryCapacity:  1 << 10,
		DiskCapacity:    1 << 10,
		MaxAge:          10 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	})
	k := Key{Text: "stale"}
	m.Put(k, []byte("data"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s := m.Stats(); s.Memory.Items == 0 && s.Disk.Items == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stale entry never pruned")
}

func TestManager_RequiresDir(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error without directory")
	}
}
