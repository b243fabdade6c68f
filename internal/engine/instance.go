package engine

import "sync"

// Parameter bounds shared by every engine.
const (
	MinParam = 0
	MaxParam = 100
)

// Parameters holds the persisted per-voice settings.
type Parameters struct {
	Rate       int     `yaml:"rate" mapstructure:"rate"`
	Pitch      int     `yaml:"pitch" mapstructure:"pitch"`
	Volume     int     `yaml:"volume" mapstructure:"volume"`
	WaitFactor float64 `yaml:"wait_factor" mapstructure:"wait_factor"`
}

// DefaultParameters returns the settings a voice starts with before anything is persisted.
func DefaultParameters() Parameters {
	return Parameters{Rate: 50, Pitch: 50, Volume: 100}
}

// ParameterStore persists per-voice parameters. The on-disk format is the
// store's business.
type ParameterStore interface {
	LoadVoice(name string) (Parameters, bool)
	SaveVoice(name string, p Parameters) error
}

// BaseInstance carries the state every voice instance shares: identity,
// mutable parameters, playback flags and persistence. Engines embed it and add
// Dispatch, Stop and Close.
type BaseInstance struct {
	desc  VoiceDescriptor
	sink  TaskSink
	store ParameterStore

	mu        sync.RWMutex
	params    Parameters
	playing   bool
	lastIndex int
}

// NewBaseInstance creates the shared state for one voice. store may be nil, in
// which case LoadParameter and Commit do nothing.
func NewBaseInstance(desc VoiceDescriptor, sink TaskSink, store ParameterStore) *BaseInstance {
	return &BaseInstance{
		desc:   desc,
		sink:   sink,
		store:  store,
		params: DefaultParameters(),
	}
}

// Name returns the voice name.
func (b *BaseInstance) Name() string { return b.desc.Name }

// ID returns the engine-specific voice identifier.
func (b *BaseInstance) ID() string { return b.desc.ID }

// Language returns the voice's language tag.
func (b *BaseInstance) Language() string { return b.desc.Language }

// Engine returns the owning engine tag.
func (b *BaseInstance) Engine() Tag { return b.desc.Engine }

// Descriptor returns the descriptor the instance was created from.
func (b *BaseInstance) Descriptor() VoiceDescriptor { return b.desc }

// Sink returns the task sink the instance submits to.
func (b *BaseInstance) Sink() TaskSink { return b.sink }

func (b *BaseInstance) Rate() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params.Rate
}

func (b *BaseInstance) SetRate(rate int) {
	b.mu.Lock()
	b.params.Rate = clamp(rate)
	b.mu.Unlock()
}

func (b *BaseInstance) Pitch() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params.Pitch
}

func (b *BaseInstance) SetPitch(pitch int) {
	b.mu.Lock()
	b.params.Pitch = clamp(pitch)
	b.mu.Unlock()
}

func (b *BaseInstance) Volume() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params.Volume
}

func (b *BaseInstance) SetVolume(volume int) {
	b.mu.Lock()
	b.params.Volume = clamp(volume)
	b.mu.Unlock()
}

func (b *BaseInstance) WaitFactor() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params.WaitFactor
}

func (b *BaseInstance) SetWaitFactor(factor float64) {
	if factor < 0 {
		factor = 0
	}
	b.mu.Lock()
	b.params.WaitFactor = factor
	b.mu.Unlock()
}

// Parameters returns a snapshot of the current parameters.
func (b *BaseInstance) Parameters() Parameters {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.params
}

// LoadParameter replaces the current parameters with the persisted ones, if any.
func (b *BaseInstance) LoadParameter() error {
	if b.store == nil {
		return nil
	}
	p, ok := b.store.LoadVoice(b.desc.Name)
	if !ok {
		return nil
	}
	p.Rate, p.Pitch, p.Volume = clamp(p.Rate), clamp(p.Pitch), clamp(p.Volume)
	b.mu.Lock()
	b.params = p
	b.mu.Unlock()
	return nil
}

// Commit persists the current parameters.
func (b *BaseInstance) Commit() error {
	if b.store == nil {
		return nil
	}
	return b.store.SaveVoice(b.desc.Name, b.Parameters())
}

// Activate marks the instance as the one about to speak.
func (b *BaseInstance) Activate() {
	b.SetPlaying(true)
}

func (b *BaseInstance) Playing() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.playing
}

func (b *BaseInstance) SetPlaying(playing bool) {
	b.mu.Lock()
	b.playing = playing
	b.mu.Unlock()
}

func (b *BaseInstance) LastIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastIndex
}

func (b *BaseInstance) SetLastIndex(index int) {
	b.mu.Lock()
	b.lastIndex = index
	b.mu.Unlock()
}

// Enqueue submits a request for target through the instance's sink.
func (b *BaseInstance) Enqueue(target Playable, mode Mode, text string, index int) error {
	if b.sink == nil {
		return ErrWorkerStopped
	}
	b.sink.Submit(SpeechTask{Target: target, Text: text, Index: index, Mode: mode})
	return nil
}

func clamp(v int) int {
	if v < MinParam {
		return MinParam
	}
	if v > MaxParam {
		return MaxParam
	}
	return v
}
