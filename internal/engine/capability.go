// Package engine defines the contract every synthesis backend satisfies and the
// small set of shared primitives (tasks, the exclusion token, the notification
// sink) that the coordination layer passes between engines, the playback
// worker and the callback bridge.
package engine

// Tag identifies a synthesis engine, e.g. "piper" or "gtts".
type Tag string

// FilterAll is the engine filter value that selects voices from every engine.
const FilterAll Tag = "ALL"

// VoiceDescriptor describes one voice offered by an engine.
// Descriptors are immutable once enumerated.
type VoiceDescriptor struct {
	ID          string // Engine-specific voice identifier
	Name        string // Unique voice name across all engines
	Engine      Tag    // Owning engine
	Language    string // Language tag as reported by the engine
	Locale      string // Normalized locale, e.g. "en_US"
	Description string // Human-readable description
}

// Capability is the uniform lifecycle contract implemented by every engine.
type Capability interface {
	// Tag returns the engine identifier used for filtering and instance routing.
	Tag() Tag

	// Ready probes whether the engine can be activated. It must not have side
	// effects and is safe to call before EngineOn.
	Ready() bool

	// EngineOn activates the engine. The token is the process-wide exclusion
	// token shared by every engine driving the same output hardware.
	// Calling EngineOn again after a successful activation is a no-op.
	EngineOn(token *Token) error

	// EngineOff deactivates the engine. Errors are reported but callers keep
	// shutting down the remaining engines.
	EngineOff() error

	// Voices enumerates the voices currently offered. The result is stable
	// for identical underlying state.
	Voices() []VoiceDescriptor

	// CreateInstance constructs a live handle for one voice. Queue-routed
	// engines submit their speech through sink.
	CreateInstance(desc VoiceDescriptor, sink TaskSink) (Instance, error)
}

// Instance is a live, stateful handle to one engine's voice.
type Instance interface {
	Playable

	ID() string
	Language() string
	Engine() Tag

	Rate() int
	SetRate(rate int)
	Pitch() int
	SetPitch(pitch int)
	Volume() int
	SetVolume(volume int)
	WaitFactor() float64
	SetWaitFactor(factor float64)

	// LoadParameter reads persisted parameters into the instance.
	LoadParameter() error
	// Commit persists the current parameters.
	Commit() error

	// Speak requests a new utterance.
	Speak(text string) error
	// SpeakIndex requests playback to continue at a previously reported index.
	SpeakIndex(index int) error
	// Stop silences the instance immediately at the native layer.
	Stop() error
	// Close releases native resources held by the instance.
	Close() error

	Playing() bool
	LastIndex() int
}

// Listener receives the two notifications emitted by the coordination layer.
// Implementations must return quickly; they run on the engine's callback path.
type Listener interface {
	IndexReached(voice string, index int)
	DoneSpeaking(voice string)
}

// NopListener discards every notification.
type NopListener struct{}

// IndexReached implements Listener.
func (NopListener) IndexReached(string, int) {}

// DoneSpeaking implements Listener.
func (NopListener) DoneSpeaking(string) {}
