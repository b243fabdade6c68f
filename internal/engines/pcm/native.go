package pcm

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/bridge"
	"github.com/worldvoice/worldvoice/internal/ducking"
	"github.com/worldvoice/worldvoice/internal/engine"
)

// NativeConfig describes how an engine reaches its audio device.
type NativeConfig struct {
	Name     string
	Loader   *audio.Loader
	Device   audio.Device
	Hook     *ducking.Hook // optional
	LibPath  string
	Format   audio.Format
	Listener engine.Listener
}

// Native is the activation state shared by engines that play PCM through a
// hookable library: the library, its callback bridge and the output.
type Native struct {
	cfg NativeConfig

	mu     sync.Mutex
	on     bool
	bridge *bridge.Bridge
	out    *Output
}

// NewNative creates inactive native playback state.
func NewNative(cfg NativeConfig) *Native {
	return &Native{cfg: cfg}
}

// On loads the library, installs the ducking hook and creates the bridge.
// A hook install failure fails activation. Calling On again is a no-op.
func (n *Native) On(token *engine.Token) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.on {
		return nil
	}
	lib := n.cfg.Loader.Load(n.cfg.LibPath, n.cfg.Device)
	if n.cfg.Hook != nil {
		if err := n.cfg.Hook.Ensure(n.cfg.LibPath); err != nil {
			return err
		}
	}
	n.bridge = bridge.New(n.cfg.Name, token, n.cfg.Listener)
	n.out = NewOutput(lib, n.bridge, n.cfg.Format)
	n.on = true
	log.Debug("Native playback ready", "engine", n.cfg.Name, "lib", lib.Path())
	return nil
}

// Off drops outstanding utterances and releases the device.
func (n *Native) Off() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.on {
		return
	}
	n.bridge.MuteAll()
	n.out.Close()
	n.bridge.CancelAll()
	n.on = false
}

// Active reports whether On has succeeded and not been undone.
func (n *Native) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.on
}

// Bridge returns the callback bridge, or nil before On.
func (n *Native) Bridge() *bridge.Bridge {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bridge
}

// Format returns the PCM format the device is opened with.
func (n *Native) Format() audio.Format {
	return n.cfg.Format
}

// Play binds target and queues data on the device. hold is the caller's
// token ticket; the bridge gives it back when the device returns the buffer.
// On error the hold stays with the caller. sink may be nil for engines that
// bypass the playback worker.
func (n *Native) Play(target bridge.Target, sink bridge.Completer, hold engine.Ticket, data []byte, index int, volume float64) error {
	n.mu.Lock()
	b, out, on := n.bridge, n.out, n.on
	n.mu.Unlock()
	if !on {
		return engine.ErrEngineOff
	}

	cookie := b.Bind(target, sink, hold)
	if err := out.Play(cookie, data, index, volume); err != nil {
		b.Forget(cookie)
		return err
	}
	return nil
}

// Stop drops target's outstanding utterances without a done notification.
// The device is silenced before the bindings are dropped, so the token is
// only given back once the audio has actually stopped.
func (n *Native) Stop(target bridge.Target) {
	n.mu.Lock()
	b, out, on := n.bridge, n.out, n.on
	n.mu.Unlock()
	if !on {
		return
	}
	b.Mute(target)
	out.Reset()
	b.Cancel(target)
}

// Pause suspends playback.
func (n *Native) Pause() {
	n.mu.Lock()
	out := n.out
	n.mu.Unlock()
	if out != nil {
		out.Pause()
	}
}

// Resume continues paused playback.
func (n *Native) Resume() {
	n.mu.Lock()
	out := n.out
	n.mu.Unlock()
	if out != nil {
		out.Resume()
	}
}
