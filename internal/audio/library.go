package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	// ErrLibraryNotLoaded is returned when patching a library that was never loaded.
	ErrLibraryNotLoaded = errors.New("library not loaded")

	// ErrAlreadyPatched is returned when an entry point is patched twice.
	ErrAlreadyPatched = errors.New("entry point already patched")
)

// OpenFunc is the device-open entry point.
type OpenFunc func(deviceID int, f Format, cb Callback, instance uintptr, flags uint32) (Status, Handle)

// CloseFunc is the device-close entry point.
type CloseFunc func(h Handle) Status

// Unpatch restores an entry point to what it was before patching.
type Unpatch func()

// Library is a loaded engine library's view of the audio subsystem. Engines
// call Open and Close through the library's import table, so a patched entry
// point sees every open and close the engine makes.
type Library struct {
	path string
	dev  Device

	mu    sync.RWMutex
	open  OpenFunc
	close CloseFunc

	openPatched  bool
	closePatched bool
}

// Path returns the normalized library path.
func (l *Library) Path() string { return l.path }

// Device returns the device the library plays through.
func (l *Library) Device() Device { return l.dev }

// Open calls the current device-open entry point.
func (l *Library) Open(deviceID int, f Format, cb Callback, instance uintptr, flags uint32) (Status, Handle) {
	l.mu.RLock()
	fn := l.open
	l.mu.RUnlock()
	return fn(deviceID, f, cb, instance, flags)
}

// Close calls the current device-close entry point.
func (l *Library) Close(h Handle) Status {
	l.mu.RLock()
	fn := l.close
	l.mu.RUnlock()
	return fn(h)
}

func (l *Library) Write(h Handle, pcm []byte, cookie uintptr) Status {
	return l.dev.Write(h, pcm, cookie)
}

func (l *Library) Reset(h Handle) Status   { return l.dev.Reset(h) }
func (l *Library) Pause(h Handle) Status   { return l.dev.Pause(h) }
func (l *Library) Restart(h Handle) Status { return l.dev.Restart(h) }

func (l *Library) SetVolume(h Handle, volume float64) Status {
	return l.dev.SetVolume(h, volume)
}

// Loader keeps one Library per path, like a process loader.
type Loader struct {
	mu   sync.Mutex
	libs map[string]*Library
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{libs: make(map[string]*Library)}
}

// Load returns the library for path, binding it to dev on first load.
// Later loads of the same path return the same library and ignore dev.
func (ld *Loader) Load(path string, dev Device) *Library {
	key := NormalizePath(path)

	ld.mu.Lock()
	defer ld.mu.Unlock()

	if lib, ok := ld.libs[key]; ok {
		return lib
	}
	lib := &Library{
		path:  key,
		dev:   dev,
		open:  dev.Open,
		close: dev.Close,
	}
	ld.libs[key] = lib
	log.Debug("Library loaded", "path", key)
	return lib
}

// Lookup returns an already loaded library.
func (ld *Loader) Lookup(path string) (*Library, bool) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	lib, ok := ld.libs[NormalizePath(path)]
	return lib, ok
}

// PatchOpen replaces the device-open entry point of the library at path with
// wrap(previous). Each entry point can be patched once until unpatched.
func (ld *Loader) PatchOpen(path string, wrap func(next OpenFunc) OpenFunc) (Unpatch, error) {
	lib, ok := ld.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotLoaded, path)
	}

	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.openPatched {
		return nil, fmt.Errorf("%w: open in %s", ErrAlreadyPatched, lib.path)
	}
	prev := lib.open
	lib.open = wrap(prev)
	lib.openPatched = true

	return func() {
		lib.mu.Lock()
		lib.open = prev
		lib.openPatched = false
		lib.mu.Unlock()
	}, nil
}

// PatchClose replaces the device-close entry point of the library at path.
func (ld *Loader) PatchClose(path string, wrap func(next CloseFunc) CloseFunc) (Unpatch, error) {
	lib, ok := ld.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotLoaded, path)
	}

	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.closePatched {
		return nil, fmt.Errorf("%w: close in %s", ErrAlreadyPatched, lib.path)
	}
	prev := lib.close
	lib.close = wrap(prev)
	lib.closePatched = true

	return func() {
		lib.mu.Lock()
		lib.close = prev
		lib.closePatched = false
		lib.mu.Unlock()
	}, nil
}

// NormalizePath returns the key a library path is loaded under.
func NormalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}
