// Package pcm plays synthesized audio for an engine through its library's
// audio device and reports begin and end of each utterance to the engine's
// callback bridge from the device's own goroutine.
package pcm

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/bridge"
)

// ErrClosed is returned by Play after Close.
var ErrClosed = errors.New("pcm output closed")

// Output owns at most one device handle at a time. The handle is opened on the
// first utterance and closed again once nothing is queued, so device-open and
// device-close bracket each stretch of speech.
type Output struct {
	lib    *audio.Library
	bridge *bridge.Bridge
	format audio.Format

	mu      sync.Mutex
	handle  audio.Handle
	pending map[uintptr]int // bridge cookie -> index reported at begin
	paused  bool
	closed  bool
}

// NewOutput creates an output that plays through lib and reports to b.
func NewOutput(lib *audio.Library, b *bridge.Bridge, format audio.Format) *Output {
	return &Output{
		lib:     lib,
		bridge:  b,
		format:  format,
		pending: make(map[uintptr]int),
	}
}

// Format returns the PCM format Play expects.
func (o *Output) Format() audio.Format {
	return o.format
}

// Play queues pcm for the utterance bound under cookie. index is reported
// with the begin signal; zero means none. volume is in [0, 1].
func (o *Output) Play(cookie uintptr, data []byte, index int, volume float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.handle == 0 {
		st, h := o.lib.Open(audio.WaveMapper, o.format, o.callback, 0, 0)
		if err := st.Err(); err != nil {
			return err
		}
		o.handle = h
		if o.paused {
			o.lib.Pause(h)
		}
	}

	o.lib.SetVolume(o.handle, volume)
	o.pending[cookie] = index
	if err := o.lib.Write(o.handle, data, cookie).Err(); err != nil {
		delete(o.pending, cookie)
		return err
	}
	return nil
}

func (o *Output) callback(h audio.Handle, msg audio.Message, _ uintptr, param uintptr) {
	switch msg {
	case audio.MsgStart:
		o.mu.Lock()
		index, ok := o.pending[param]
		o.mu.Unlock()
		if ok {
			o.bridge.Begin(param, index)
		}
	case audio.MsgDone:
		o.mu.Lock()
		_, ok := o.pending[param]
		delete(o.pending, param)
		idle := len(o.pending) == 0
		o.mu.Unlock()
		if ok {
			o.bridge.End(param)
		}
		if idle {
			go o.closeIfIdle(h)
		}
	}
}

// closeIfIdle releases the device once nothing is queued on h. It runs off
// the device goroutine because Close waits for that goroutine to exit.
func (o *Output) closeIfIdle(h audio.Handle) {
	o.mu.Lock()
	if o.handle != h || len(o.pending) > 0 {
		o.mu.Unlock()
		return
	}
	o.handle = 0
	o.mu.Unlock()

	if st := o.lib.Close(h); st != audio.StatusOK {
		log.Debug("Audio device close failed", "handle", h, "status", st)
	}
}

// Reset stops playback. Every queued buffer is returned by the device and
// reported as ended, so callers cancel their bridge bindings first when the
// listener must not hear about it.
func (o *Output) Reset() {
	o.mu.Lock()
	h := o.handle
	o.mu.Unlock()
	if h == 0 {
		return
	}
	o.lib.Reset(h)
}

// Pause suspends playback, including utterances queued later.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	if o.handle != 0 {
		o.lib.Pause(o.handle)
	}
}

// Resume continues paused playback.
func (o *Output) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	if o.handle != 0 {
		o.lib.Restart(o.handle)
	}
}

// Playing reports whether any utterance is queued or playing.
func (o *Output) Playing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending) > 0
}

// Close stops playback and releases the device. Later Play calls fail.
func (o *Output) Close() {
	o.Reset()

	o.mu.Lock()
	o.closed = true
	h := o.handle
	o.handle = 0
	o.mu.Unlock()

	if h != 0 {
		o.lib.Close(h)
	}
}
