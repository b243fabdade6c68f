// Package ducking attenuates other audio while speech plays. The Hook patches
// a library's device-open and device-close entry points and keeps one Ducker
// enabled for the lifetime of every handle the library opens.
package ducking

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/engine"
)

// Ducker is a ducking resource held for one device handle.
type Ducker interface {
	Enable() error
	Disable() error
}

// Factory creates the ducker for a newly opened handle.
type Factory func(h audio.Handle) Ducker

// Patcher replaces a loaded library's audio entry points.
type Patcher interface {
	PatchOpen(path string, wrap func(next audio.OpenFunc) audio.OpenFunc) (audio.Unpatch, error)
	PatchClose(path string, wrap func(next audio.CloseFunc) audio.CloseFunc) (audio.Unpatch, error)
}

// Hook tracks device handles across open and close for every library it is
// installed in.
type Hook struct {
	patcher Patcher
	factory Factory

	installMu sync.Mutex
	installed map[string][]audio.Unpatch

	mu      sync.Mutex
	duckers map[audio.Handle]Ducker
}

// NewHook creates a hook that patches through p and creates duckers with f.
func NewHook(p Patcher, f Factory) *Hook {
	return &Hook{
		patcher:   p,
		factory:   f,
		installed: make(map[string][]audio.Unpatch),
		duckers:   make(map[audio.Handle]Ducker),
	}
}

// Ensure installs the hook in the library at libPath unless it already is.
// Both entry points are patched or neither is; on failure the returned error
// has kind HookInstallFailure and the caller must not activate the engine.
func (h *Hook) Ensure(libPath string) error {
	key := audio.NormalizePath(libPath)

	h.installMu.Lock()
	defer h.installMu.Unlock()

	if _, ok := h.installed[key]; ok {
		return nil
	}

	unOpen, err := h.patcher.PatchOpen(key, h.wrapOpen)
	if err != nil {
		return engine.HookFailure(key, err)
	}
	unClose, err := h.patcher.PatchClose(key, h.wrapClose)
	if err != nil {
		unOpen()
		return engine.HookFailure(key, err)
	}

	h.installed[key] = []audio.Unpatch{unOpen, unClose}
	log.Debug("Installed device hooks", "library", key)
	return nil
}

// Installed reports whether the hook is installed in libPath.
func (h *Hook) Installed(libPath string) bool {
	h.installMu.Lock()
	defer h.installMu.Unlock()
	_, ok := h.installed[audio.NormalizePath(libPath)]
	return ok
}

func (h *Hook) wrapOpen(next audio.OpenFunc) audio.OpenFunc {
	return func(deviceID int, f audio.Format, cb audio.Callback, instance uintptr, flags uint32) (audio.Status, audio.Handle) {
		st, handle := next(deviceID, f, cb, instance, flags)
		if st != audio.StatusOK || handle == 0 {
			return st, handle
		}

		d := h.factory(handle)
		if err := d.Enable(); err != nil {
			log.Warn("Could not enable audio ducking", "handle", handle, "err", err)
		}

		h.mu.Lock()
		prev, replaced := h.duckers[handle]
		h.duckers[handle] = d
		h.mu.Unlock()

		if replaced {
			// Handle reused without a close we saw.
			disable(prev, handle)
		}
		return st, handle
	}
}

func (h *Hook) wrapClose(next audio.CloseFunc) audio.CloseFunc {
	return func(handle audio.Handle) audio.Status {
		st := next(handle)

		h.mu.Lock()
		d, ok := h.duckers[handle]
		delete(h.duckers, handle)
		h.mu.Unlock()

		if ok {
			disable(d, handle)
		}
		return st
	}
}

func disable(d Ducker, handle audio.Handle) {
	if err := d.Disable(); err != nil {
		log.Warn("Could not disable audio ducking", "handle", handle, "err", err)
	}
}

// Tracked returns the number of handles with a live ducker.
func (h *Hook) Tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.duckers)
}

// Uninstall restores every patched entry point and disables every ducker
// still held. It is used at process teardown.
func (h *Hook) Uninstall() {
	h.installMu.Lock()
	for key, unpatches := range h.installed {
		for _, un := range unpatches {
			un()
		}
		delete(h.installed, key)
	}
	h.installMu.Unlock()

	h.mu.Lock()
	remaining := h.duckers
	h.duckers = make(map[audio.Handle]Ducker)
	h.mu.Unlock()

	for handle, d := range remaining {
		disable(d, handle)
	}
}
