package mock

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldvoice/worldvoice/internal/audio"
	"github.com/worldvoice/worldvoice/internal/ducking"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/voice"
)

type recorder struct {
	mu      sync.Mutex
	indexes []int
	done    []string
}

func (r *recorder) IndexReached(_ string, index int) {
	r.mu.Lock()
	r.indexes = append(r.indexes, index)
	r.mu.Unlock()
}

func (r *recorder) DoneSpeaking(name string) {
	r.mu.Lock()
	r.done = append(r.done, name)
	r.mu.Unlock()
}

func (r *recorder) doneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.done)
}

type fixture struct {
	engine   *Engine
	manager  *voice.Manager
	device   *audio.NullDevice
	ducking  *ducking.Controller
	listener *recorder
}

func newFixture(t *testing.T, delay float64) *fixture {
	t.Helper()

	ld := audio.NewLoader()
	ctrl := ducking.NewController(0.3, true)
	dev := audio.NewNullDevice(delay)
	rec := &recorder{}

	e := New(Options{
		Listener: rec,
		Loader:   ld,
		Device:   dev,
		Hook:     ducking.NewHook(ld, ctrl.NewDucker),
	})
	m, err := voice.New([]engine.Capability{e}, voice.Options{})
	require.NoError(t, err)
	t.Cleanup(m.Terminate)

	return &fixture{engine: e, manager: m, device: dev, ducking: ctrl, listener: rec}
}

func waitIdle(t *testing.T, m *voice.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestEngine_SpeakEndToEnd(t *testing.T) {
	f := newFixture(t, 0)

	var transitions []bool
	var mu sync.Mutex
	f.ducking.OnChange(func(active bool, _ float64) {
		mu.Lock()
		transitions = append(transitions, active)
		mu.Unlock()
	})

	inst, err := f.manager.VoiceInstanceForLanguage("en_US")
	require.NoError(t, err)
	assert.Equal(t, "Mock English", inst.Name())

	require.NoError(t, inst.Speak("hello"))
	require.NoError(t, inst.Speak("world"))
	waitIdle(t, f.manager)

	assert.Equal(t, []string{"Mock English", "Mock English"}, f.listener.done)
	assert.False(t, inst.Playing())
	assert.Zero(t, f.engine.Bridge().Outstanding())

	// Device released once idle, which lifts ducking.
	assert.Eventually(t, func() bool { return f.device.OpenHandles() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !f.ducking.Active() }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.NotEmpty(t, transitions)
	assert.True(t, transitions[0])
	assert.False(t, transitions[len(transitions)-1])
	mu.Unlock()
}

func TestEngine_SpeakIndexReportsIndex(t *testing.T) {
	f := newFixture(t, 0)
	inst, err := f.manager.GetVoiceInstance("Mock French")
	require.NoError(t, err)

	require.NoError(t, inst.SpeakIndex(12))
	waitIdle(t, f.manager)

	assert.Equal(t, []int{12}, f.listener.indexes)
	assert.Equal(t, 12, inst.LastIndex())
	assert.Equal(t, 1, f.listener.doneCount())
}

func TestEngine_CancelBeforeEnd(t *testing.T) {
	f := newFixture(t, 1)
	inst, err := f.manager.GetVoiceInstance("Mock English")
	require.NoError(t, err)

	long := strings.Repeat("hello ", 100)
	require.NoError(t, inst.Speak(long))
	require.NoError(t, inst.Speak(long))
	require.NoError(t, inst.Speak(long))

	require.Eventually(t, func() bool {
		return f.engine.Bridge().GetStats().Begins == 1
	}, time.Second, time.Millisecond)

	f.manager.Cancel()
	waitIdle(t, f.manager)

	assert.Zero(t, f.listener.doneCount(), "cancelled speech is not reported done")
	assert.Zero(t, f.engine.Bridge().Outstanding())
	assert.Eventually(t, func() bool { return f.device.OpenHandles() == 0 }, time.Second, 5*time.Millisecond)

	// The token was given back: a new utterance plays through.
	f.device.SetDelayFactor(0)
	require.NoError(t, inst.Speak("again"))
	waitIdle(t, f.manager)
	assert.Equal(t, 1, f.listener.doneCount())
}

func TestEngine_ActivationFailures(t *testing.T) {
	ld := audio.NewLoader()
	ld.Load(DefaultLibPath, audio.NewNullDevice(0))
	_, err := ld.PatchClose(DefaultLibPath, func(next audio.CloseFunc) audio.CloseFunc { return next })
	require.NoError(t, err)

	hooked := New(Options{
		Tag:    "hooked",
		Loader: ld,
		Hook:   ducking.NewHook(ld, ducking.NewController(0.3, true).NewDucker),
		Voices: []engine.VoiceDescriptor{{ID: "h", Name: "Hooked", Language: "en"}},
	})
	broken := New(Options{
		Tag:            "broken",
		FailActivation: true,
		Voices:         []engine.VoiceDescriptor{{ID: "b", Name: "Broken", Language: "en"}},
	})
	offline := New(Options{Tag: "offline", Unavailable: true})
	good := New(Options{Device: audio.NewNullDevice(0)})

	m, err := voice.New([]engine.Capability{hooked, broken, offline, good}, voice.Options{})
	require.NoError(t, err)
	defer m.Terminate()

	assert.Equal(t, []engine.Tag{"mock"}, m.Engines())
	_, ok := m.EngineOf("Hooked")
	assert.False(t, ok, "engine with failed hook install is excluded")
	assert.Equal(t, "Mock English", m.DefaultVoice())
}

func TestEngine_Voices(t *testing.T) {
	e := New(Options{
		Tag:    "x",
		Voices: []engine.VoiceDescriptor{{ID: "1", Name: "Alice", Language: "en-gb"}},
	})
	voices := e.Voices()
	require.Len(t, voices, 1)
	assert.Equal(t, engine.Tag("x"), voices[0].Engine)
	assert.Equal(t, "en_GB", voices[0].Locale)
}

func TestEngine_DispatchWhenOff(t *testing.T) {
	e := New(Options{})
	inst, err := e.CreateInstance(DefaultVoices[0], nil)
	require.NoError(t, err)

	assert.ErrorIs(t, inst.Dispatch(0, engine.ModeSpeak, "hi", 0), engine.ErrEngineOff)
	assert.ErrorIs(t, inst.Speak("hi"), engine.ErrWorkerStopped)
	assert.NoError(t, inst.Stop())
}

func TestEngine_Synthesize(t *testing.T) {
	e := New(Options{CharDuration: 10 * time.Millisecond})
	f := audio.DefaultFormat

	normal := e.synthesize("abcd", 50, 0)
	assert.Equal(t, 40*time.Millisecond, f.Duration(len(normal)).Round(time.Millisecond))

	fast := e.synthesize("abcd", 100, 0)
	assert.Less(t, len(fast), len(normal))

	paused := e.synthesize("abcd", 50, 1)
	assert.Equal(t, 140*time.Millisecond, f.Duration(len(paused)).Round(time.Millisecond))
}
