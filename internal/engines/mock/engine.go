// Package mock provides a queue-routed engine that behaves like a native
// callback library: speech is accepted immediately, played on an audio device
// opened through a hookable library table, and completion arrives on the
// device's goroutine. Audio is silence of a length derived from the text.
package mock

import (
	"errors"
	"time"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/bridge"
	"github.com/worldvoice/worldvoice/internal/ducking"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/engines/pcm"
	"github.com/worldvoice/worldvoice/internal/locale"
)

// Tag is the default engine tag.
const Tag engine.Tag = "mock"

// DefaultLibPath is the library path the engine registers its device under.
const DefaultLibPath = "mock/libmocktts.so"

// DefaultCharDuration is the simulated speaking time per character at rate 50.
const DefaultCharDuration = 5 * time.Millisecond

// DefaultVoices is the voice set offered when Options.Voices is empty.
var DefaultVoices = []engine.VoiceDescriptor{
	{ID: "m-en", Name: "Mock English", Language: "en", Locale: "en_US", Description: "Mock English"},
	{ID: "m-fr", Name: "Mock French", Language: "fr", Locale: "fr_FR", Description: "Mock French"},
}

// ErrActivation is returned by EngineOn when Options.FailActivation is set.
var ErrActivation = errors.New("mock engine activation failed")

// Options configures an Engine.
type Options struct {
	Tag          engine.Tag
	Voices       []engine.VoiceDescriptor
	Store        engine.ParameterStore
	Listener     engine.Listener
	Loader       *audio.Loader
	Device       audio.Device
	Hook         *ducking.Hook
	LibPath      string
	Format       audio.Format
	CharDuration time.Duration

	// Unavailable makes Ready report false.
	Unavailable bool
	// FailActivation makes EngineOn fail.
	FailActivation bool
}

// Engine implements engine.Capability.
type Engine struct {
	opts   Options
	native *pcm.Native
}

// New creates a mock engine. Missing options get working defaults: a private
// loader and a null device playing at real-time speed.
func New(opts Options) *Engine {
	if opts.Tag == "" {
		opts.Tag = Tag
	}
	if len(opts.Voices) == 0 {
		opts.Voices = DefaultVoices
	}
	if opts.Loader == nil {
		opts.Loader = audio.NewLoader()
	}
	if opts.Device == nil {
		opts.Device = audio.NewNullDevice(1)
	}
	if opts.LibPath == "" {
		opts.LibPath = DefaultLibPath
	}
	if !opts.Format.Valid() {
		opts.Format = audio.DefaultFormat
	}
	if opts.CharDuration <= 0 {
		opts.CharDuration = DefaultCharDuration
	}
	return &Engine{
		opts: opts,
		native: pcm.NewNative(pcm.NativeConfig{
			Name:     string(opts.Tag),
			Loader:   opts.Loader,
			Device:   opts.Device,
			Hook:     opts.Hook,
			LibPath:  opts.LibPath,
			Format:   opts.Format,
			Listener: opts.Listener,
		}),
	}
}

// Tag implements engine.Capability.
func (e *Engine) Tag() engine.Tag { return e.opts.Tag }

// Ready implements engine.Capability.
func (e *Engine) Ready() bool { return !e.opts.Unavailable }

// EngineOn loads the library, installs the ducking hook on it and creates the
// callback bridge.
func (e *Engine) EngineOn(token *engine.Token) error {
	if e.opts.FailActivation {
		return ErrActivation
	}
	return e.native.On(token)
}

// EngineOff cancels outstanding utterances and releases the device.
func (e *Engine) EngineOff() error {
	e.native.Off()
	return nil
}

// Voices implements engine.Capability.
func (e *Engine) Voices() []engine.VoiceDescriptor {
	voices := make([]engine.VoiceDescriptor, len(e.opts.Voices))
	copy(voices, e.opts.Voices)
	for i := range voices {
		voices[i].Engine = e.opts.Tag
		if voices[i].Locale == "" {
			voices[i].Locale = locale.Normalize(voices[i].Language)
		}
	}
	return voices
}

// CreateInstance implements engine.Capability.
func (e *Engine) CreateInstance(desc engine.VoiceDescriptor, sink engine.TaskSink) (engine.Instance, error) {
	return &Voice{
		BaseInstance: engine.NewBaseInstance(desc, sink, e.opts.Store),
		engine:       e,
	}, nil
}

// Pause suspends playback on the engine's device.
func (e *Engine) Pause() { e.native.Pause() }

// Resume continues paused playback.
func (e *Engine) Resume() { e.native.Resume() }

// Bridge returns the callback bridge, or nil before EngineOn.
func (e *Engine) Bridge() *bridge.Bridge { return e.native.Bridge() }

// synthesize returns silence lasting as long as the text would take to speak
// at the given rate, followed by the wait-factor pause.
func (e *Engine) synthesize(text string, rate int, waitFactor float64) []byte {
	speed := 0.5 + float64(rate)/100
	d := time.Duration(float64(len([]rune(text))*int(e.opts.CharDuration)) / speed)
	d += time.Duration(waitFactor * float64(100*time.Millisecond))

	f := e.opts.Format
	frames := int(d.Seconds() * float64(f.SampleRate))
	return make([]byte, frames*f.BlockAlign())
}
