package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func pcmBytes(n int) []byte {
	// Silence with a little structure compresses well, like real PCM gaps.
	b := make([]byte, n)
	for i := 0; i < n; i += 64 {
		b[i] = byte(i)
	}
	return b
}

func TestDiskCache_PutGetCompressed(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()

	value := pcmBytes(8192)
	if err := dc.Put("k", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if dc.Size() >= int64(len(value)) {
		t.Errorf("expected compression, size on disk %d", dc.Size())
	}

	got, ok := dc.Get("k")
	if !ok {
		t.Fatal("Get: miss")
	}
	if !bytes.Equal(got, value) {
		t.Error("round trip changed payload")
	}
}

func TestDiskCache_SmallPayloadStoredRaw(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()

	dc.Put("k", []byte("tiny"))
	if dc.Size() != 4 {
		t.Errorf("Size = %d, want 4", dc.Size())
	}
}

func TestDiskCache_PersistsIndex(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	value := pcmBytes(4096)
	dc.Put("k", value)
	if err := dc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := dc.Put("late", value); err != ErrClosed {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("k")
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("entry lost across reopen")
	}
}

func TestDiskCache_MissingFileDropsEntry(t *testing.T) {
	dir := t.TempDir()
	dc, err := NewDiskCache(dir, 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()

	dc.Put("k", []byte("value"))
	os.Remove(filepath.Join(dir, "k.pcm"))

	if _, ok := dc.Get("k"); ok {
		t.Fatal("expected miss for deleted file")
	}
	if dc.Contains("k") || dc.Size() != 0 {
		t.Error("entry should be dropped")
	}
}

func TestDiskCache_EvictsOldest(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()

	dc.Put("a", []byte("aaaa"))
	dc.Put("b", []byte("bbbb"))
	dc.Get("a")
	dc.Put("c", []byte("cccc"))

	if dc.Contains("b") {
		t.Error("b should have been evicted")
	}
	if got := dc.Oldest(2); len(got) != 2 || got[0] != "a" {
		t.Errorf("Oldest = %v", got)
	}
	if err := dc.Put("huge", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("Put = %v, want ErrItemTooLarge", err)
	}
}
