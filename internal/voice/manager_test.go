package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldvoice/worldvoice/internal/engine"
)

type fakeInstance struct {
	*engine.BaseInstance
	cap *fakeCapability

	mu      sync.Mutex
	commits int
	stops   int
	closed  bool
	hold    engine.Ticket
	onStop  func()

	abortOnce sync.Once
	abort     chan struct{}
}

// Dispatch keeps the hold until Stop, like audio still playing. On an engine
// with block set it waits for Stop first, like a synthesis in progress.
func (f *fakeInstance) Dispatch(hold engine.Ticket, _ engine.Mode, text string, _ int) error {
	if f.cap.block {
		f.cap.record("dispatch:" + f.Name())
		<-f.abort
		f.cap.record("aborted:" + f.Name())
		return fmt.Errorf("synthesis of %q: %w", text, context.Canceled)
	}
	f.mu.Lock()
	f.hold = hold
	f.mu.Unlock()
	if f.cap.accepted != nil {
		f.cap.accepted <- f.Name() + ":" + text
	}
	return nil
}

func (f *fakeInstance) Speak(text string) error {
	return f.Enqueue(f, engine.ModeSpeak, text, 0)
}

func (f *fakeInstance) SpeakIndex(index int) error {
	return f.Enqueue(f, engine.ModeSpeakIndex, "", index)
}

func (f *fakeInstance) Stop() error {
	f.abortOnce.Do(func() { close(f.abort) })

	f.mu.Lock()
	f.stops++
	hold := f.hold
	f.hold = 0
	onStop := f.onStop
	f.mu.Unlock()

	if hold != 0 && f.cap.token.Release(hold) {
		f.Sink().TaskDone()
	}
	f.cap.record("stop:" + f.Name())
	if onStop != nil {
		onStop()
	}
	return nil
}

func (f *fakeInstance) Close() error {
	f.abortOnce.Do(func() { close(f.abort) })
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cap.record("close:" + f.Name())
	return nil
}

func (f *fakeInstance) Commit() error {
	f.mu.Lock()
	f.commits++
	f.mu.Unlock()
	return f.BaseInstance.Commit()
}

type fakeCapability struct {
	tag      engine.Tag
	voices   []engine.VoiceDescriptor
	notReady bool
	onErr    error
	offErr   error

	// block makes dispatches wait for Stop.
	block bool
	// accepted receives "voice:text" for every accepted dispatch.
	accepted chan string

	mu      sync.Mutex
	on      int
	off     int
	created map[string]int
	token   *engine.Token
	log     *[]string
}

func newCap(tag engine.Tag, voices ...engine.VoiceDescriptor) *fakeCapability {
	for i := range voices {
		voices[i].Engine = tag
		if voices[i].ID == "" {
			voices[i].ID = voices[i].Name
		}
	}
	return &fakeCapability{tag: tag, voices: voices, created: map[string]int{}}
}

func (c *fakeCapability) record(s string) {
	if c.log == nil {
		return
	}
	c.mu.Lock()
	*c.log = append(*c.log, s)
	c.mu.Unlock()
}

func (c *fakeCapability) Tag() engine.Tag { return c.tag }
func (c *fakeCapability) Ready() bool     { return !c.notReady }

func (c *fakeCapability) EngineOn(tok *engine.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onErr != nil {
		return c.onErr
	}
	c.on++
	c.token = tok
	return nil
}

func (c *fakeCapability) EngineOff() error {
	c.record("off:" + string(c.tag))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.off++
	return c.offErr
}

func (c *fakeCapability) Voices() []engine.VoiceDescriptor {
	return append([]engine.VoiceDescriptor(nil), c.voices...)
}

func (c *fakeCapability) CreateInstance(desc engine.VoiceDescriptor, sink engine.TaskSink) (engine.Instance, error) {
	c.mu.Lock()
	c.created[desc.Name]++
	c.mu.Unlock()
	return &fakeInstance{
		BaseInstance: engine.NewBaseInstance(desc, sink, nil),
		cap:          c,
		abort:        make(chan struct{}),
	}, nil
}

type mapRoles struct {
	mu    sync.Mutex
	roles map[string]string
	saves int
}

func (r *mapRoles) RoleVoice(l string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.roles[l]
	return v, ok
}

func (r *mapRoles) Roles() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.roles))
	for k, v := range r.roles {
		out[k] = v
	}
	return out
}

func (r *mapRoles) ReplaceRoles(roles map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = roles
	r.saves++
	return nil
}

func v(name, lang string) engine.VoiceDescriptor {
	return engine.VoiceDescriptor{Name: name, Language: lang, Description: name}
}

// scenarioA builds engines X (Alice@en, Bob@fr) and Y (Carl@en_US).
func scenarioA(t *testing.T, roles *mapRoles) (*Manager, *fakeCapability, *fakeCapability) {
	t.Helper()
	x := newCap("X", v("Bob", "fr"), v("Alice", "en"))
	y := newCap("Y", v("Carl", "en_US"))
	if roles == nil {
		roles = &mapRoles{roles: map[string]string{"en_US": "Carl"}}
	}
	m, err := New([]engine.Capability{y, x}, Options{Roles: roles})
	require.NoError(t, err)
	t.Cleanup(m.Terminate)
	return m, x, y
}

func names(descs []engine.VoiceDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func TestManager_ScenarioA(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	infos := m.VoiceInfos()
	require.Len(t, infos, 3)
	assert.Equal(t, []string{"Alice", "Bob", "Carl"}, names(infos))
	assert.Equal(t, engine.Tag("X"), infos[0].Engine)
	assert.Equal(t, "en", infos[0].Locale)
	assert.Equal(t, engine.Tag("Y"), infos[2].Engine)
	assert.Equal(t, "en_US", infos[2].Locale)

	assert.Equal(t, "Alice", m.DefaultVoice())
	assert.Equal(t, []string{"Alice"}, m.Cached(), "default voice materialized eagerly")

	assert.Equal(t, "Carl", m.ResolveVoiceForLanguage("en_US"))
	assert.Equal(t, "Alice", m.ResolveVoiceForLanguage("en_GB"))
}

func TestManager_ResolveVoiceForLanguage(t *testing.T) {
	roles := &mapRoles{roles: map[string]string{
		"fr":    "Bob",
		"en_US": "Carl",
		"de_DE": "Nobody",
		"de":    "Carl",
		"it":    "Ghost",
	}}
	m, _, _ := scenarioA(t, roles)

	tests := []struct {
		lang string
		want string
	}{
		{"en_US", "Carl"},
		{"en-us", "Carl"},
		{"fr", "Bob"},
		{"fr_CA", "Bob"},   // base language fallback
		{"de_DE", "Carl"},  // configured voice unknown, base retried
		{"it_IT", "Alice"}, // base voice unknown too
		{"it", "Alice"},    // no region to strip
		{"ja_JP", "Alice"}, // nothing configured
		{"", "Alice"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, m.ResolveVoiceForLanguage(tt.lang))
		})
	}
}

func TestManager_InstanceIdentity(t *testing.T) {
	m, x, _ := scenarioA(t, nil)

	a, err := m.GetVoiceInstance("Bob")
	require.NoError(t, err)
	b, err := m.GetVoiceInstance("Bob")
	require.NoError(t, err)

	assert.Same(t, a.(*fakeInstance), b.(*fakeInstance))
	assert.Equal(t, 1, x.created["Bob"])

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := m.GetVoiceInstance("Carl")
			assert.NoError(t, err)
			assert.NotNil(t, inst)
		}()
	}
	wg.Wait()
	assert.Len(t, m.Cached(), 3)
}

func TestManager_UnknownVoice(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	inst, err := m.GetVoiceInstance("Zed")
	assert.Nil(t, inst)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnknownVoice)
	kind, ok := engine.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, engine.KindUnknownVoice, kind)
	assert.NotContains(t, m.Cached(), "Zed")
}

func TestManager_EngineFilter(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	assert.Equal(t, engine.FilterAll, m.EngineFilter())
	assert.Equal(t, m.VoiceInfos(), m.VoiceInfosFiltered())

	require.NoError(t, m.SetEngineFilter("Y"))
	for _, d := range m.VoiceInfosFiltered() {
		assert.Equal(t, engine.Tag("Y"), d.Engine)
	}
	assert.Equal(t, []string{"en", "en_US"}, m.LanguagesFiltered())
	assert.Len(t, m.VoiceInfos(), 3, "unfiltered catalog untouched")

	err := m.SetEngineFilter("Z")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidEngineFilter)
	assert.Equal(t, engine.Tag("Y"), m.EngineFilter(), "previous filter retained")

	require.NoError(t, m.SetEngineFilter(engine.FilterAll))
	assert.Equal(t, m.VoiceInfos(), m.VoiceInfosFiltered())
}

func TestManager_LocaleIndex(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	idx := m.LocaleToVoices()
	assert.Equal(t, []string{"Alice", "Carl"}, idx["en"], "base key collects sub-locales")
	assert.Equal(t, []string{"Carl"}, idx["en_US"])
	assert.Equal(t, []string{"Bob"}, idx["fr"])
	assert.Equal(t, []string{"en", "en_US", "fr"}, m.Languages())

	// Every name in the index is in the catalog.
	catalog := map[string]bool{}
	for _, d := range m.VoiceInfos() {
		catalog[d.Name] = true
	}
	for l, names := range idx {
		for _, n := range names {
			assert.True(t, catalog[n], "%s lists unknown voice %s", l, n)
		}
	}

	assert.Equal(t, "French - fr", m.LocaleNames()["fr"])
}

func TestManager_SetDefaultVoice(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	assert.True(t, m.SetDefaultVoice("Carl"))
	assert.Equal(t, "Carl", m.DefaultVoice())

	assert.False(t, m.SetDefaultVoice("Zed"))
	assert.Equal(t, "Carl", m.DefaultVoice(), "invalid name keeps previous default")

	// Validated against the unfiltered set.
	require.NoError(t, m.SetEngineFilter("X"))
	assert.True(t, m.SetDefaultVoice("Carl"))
}

func TestManager_ScenarioD_WaitFactor(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	bob, err := m.GetVoiceInstance("Bob")
	require.NoError(t, err)
	alice, err := m.GetVoiceInstance("Alice")
	require.NoError(t, err)

	require.NoError(t, m.SetWaitFactor(1.5))

	for _, inst := range []engine.Instance{alice, bob} {
		f := inst.(*fakeInstance)
		assert.Equal(t, 1.5, f.WaitFactor(), f.Name())
		assert.Equal(t, 1, f.commits, "%s committed exactly once", f.Name())
	}

	carl, err := m.GetVoiceInstance("Carl")
	require.NoError(t, err)
	assert.Equal(t, 1.5, carl.WaitFactor(), "new instances inherit the wait factor")
	assert.Zero(t, carl.(*fakeInstance).commits)
}

func TestManager_PropagateParameters(t *testing.T) {
	m, _, _ := scenarioA(t, nil)

	alice, _ := m.GetVoiceInstance("Alice")
	bob, _ := m.GetVoiceInstance("Bob")

	alice.SetRate(80)
	alice.SetPitch(20)
	alice.SetVolume(70)

	require.NoError(t, m.PropagateParameters(alice))
	assert.Equal(t, 80, bob.Rate())
	assert.Equal(t, 20, bob.Pitch())
	assert.Equal(t, 70, bob.Volume())
	assert.Equal(t, 1, bob.(*fakeInstance).commits)
	assert.Equal(t, 1, alice.(*fakeInstance).commits)
}

func TestManager_ActivationIsolation(t *testing.T) {
	broken := newCap("broken", v("Dora", "de"))
	broken.onErr = errors.New("dll missing")
	absent := newCap("absent", v("Eve", "es"))
	absent.notReady = true
	good := newCap("good", v("Finn", "fi"))

	m, err := New([]engine.Capability{broken, absent, good}, Options{})
	require.NoError(t, err)
	defer m.Terminate()

	assert.Equal(t, []string{"Finn"}, names(m.VoiceInfos()))
	assert.Equal(t, []engine.Tag{"good"}, m.Engines())
	assert.Zero(t, absent.on, "EngineOn not called when not ready")
}

func TestManager_NoVoices(t *testing.T) {
	broken := newCap("broken", v("Dora", "de"))
	broken.onErr = errors.New("dll missing")
	empty := newCap("empty")

	m, err := New([]engine.Capability{broken, empty}, Options{})
	assert.Nil(t, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNoVoices)
	assert.Equal(t, 1, empty.off, "activated engines are shut down again")

	assert.False(t, Ready([]engine.Capability{&fakeCapability{notReady: true}}))
	assert.True(t, Ready([]engine.Capability{broken}))
}

func TestManager_Options(t *testing.T) {
	x := newCap("X", v("Alice", "en"), v("Bob", "fr"))
	y := newCap("Y", v("Carl", "en_US"))

	m, err := New([]engine.Capability{x, y}, Options{
		EngineFilter: "Y",
		DefaultVoice: "Bob",
		WaitFactor:   2,
	})
	require.NoError(t, err)
	defer m.Terminate()

	assert.Equal(t, engine.Tag("Y"), m.EngineFilter())
	assert.Equal(t, "Bob", m.DefaultVoice())
	bob, _ := m.GetVoiceInstance("Bob")
	assert.Equal(t, 2.0, bob.WaitFactor())
}

func TestManager_KeepEngineConsistent(t *testing.T) {
	roles := &mapRoles{roles: map[string]string{
		"en_US": "Carl",
		"en":    "Alice",
		"fr":    "Bob",
	}}
	m, _, _ := scenarioA(t, roles)

	require.NoError(t, m.KeepEngineConsistent())
	assert.Zero(t, roles.saves, "nothing to drop under ALL")

	require.NoError(t, m.SetEngineFilter("Y"))
	require.NoError(t, m.KeepEngineConsistent())
	assert.Equal(t, map[string]string{"en_US": "Carl"}, roles.Roles())
	assert.Equal(t, 1, roles.saves)
}

func TestManager_CancelStopsDefaultFirst(t *testing.T) {
	var order []string
	x := newCap("X", v("Alice", "en"), v("Bob", "fr"))
	x.log = &order

	m, err := New([]engine.Capability{x}, Options{})
	require.NoError(t, err)
	defer m.Terminate()

	_, err = m.GetVoiceInstance("Bob")
	require.NoError(t, err)

	m.Cancel()
	assert.Equal(t, []string{"stop:Alice", "stop:Bob"}, order)
}

func TestManager_Terminate(t *testing.T) {
	x := newCap("X", v("Alice", "en"), v("Bob", "fr"))
	x.offErr = errors.New("driver busy")
	y := newCap("Y", v("Carl", "en_US"))

	m, err := New([]engine.Capability{x, y}, Options{})
	require.NoError(t, err)

	alice, _ := m.GetVoiceInstance("Alice")
	carl, _ := m.GetVoiceInstance("Carl")

	m.Terminate()
	m.Terminate()

	for _, inst := range []engine.Instance{alice, carl} {
		f := inst.(*fakeInstance)
		assert.True(t, f.closed, f.Name())
		assert.Equal(t, 1, f.commits, f.Name())
	}
	assert.Equal(t, 1, x.off)
	assert.Equal(t, 1, y.off, "a failing engine does not stop the others")
	assert.True(t, m.Terminated())

	_, err = m.GetVoiceInstance("Alice")
	assert.ErrorIs(t, err, engine.ErrTerminated)
}

func TestManager_CancelKeepsHoldOfLaterUtterance(t *testing.T) {
	m, x, y := scenarioA(t, nil)
	x.accepted = make(chan string, 4)
	y.accepted = make(chan string, 4)

	alice := mustInstance(t, m, "Alice").(*fakeInstance)
	carl := mustInstance(t, m, "Carl").(*fakeInstance)

	require.NoError(t, carl.Speak("first"))
	assert.Equal(t, "Carl:first", <-y.accepted)
	require.True(t, m.token.Held())

	// Alice's request lands on engine X while Cancel is still stopping voices.
	carl.onStop = func() {
		carl.onStop = nil
		require.NoError(t, alice.Speak("second"))
		select {
		case got := <-x.accepted:
			assert.Equal(t, "Alice:second", got)
		case <-time.After(2 * time.Second):
			t.Error("second utterance was not accepted")
		}
	}
	m.Cancel()

	alice.mu.Lock()
	hold := alice.hold
	alice.mu.Unlock()
	require.NotZero(t, hold)
	assert.Equal(t, hold, m.token.Holder(), "later utterance keeps the token")
	_, ok := m.token.TryAcquire()
	assert.False(t, ok, "no second audible window")

	require.NoError(t, alice.Stop())
	assert.False(t, m.token.Held())
}

func TestManager_TerminateJoinsWorkersBeforeClose(t *testing.T) {
	var order []string
	x := newCap("X", v("Alice", "en"))
	x.block = true
	x.log = &order

	m, err := New([]engine.Capability{x}, Options{})
	require.NoError(t, err)

	alice := mustInstance(t, m, "Alice")
	require.NoError(t, alice.Speak("long"))
	require.Eventually(t, func() bool {
		x.mu.Lock()
		defer x.mu.Unlock()
		return len(order) == 1
	}, time.Second, 5*time.Millisecond)

	m.Terminate()

	x.mu.Lock()
	defer x.mu.Unlock()
	at := func(event string) int {
		for i, e := range order {
			if e == event {
				return i
			}
		}
		t.Fatalf("%s missing from %v", event, order)
		return -1
	}
	assert.Less(t, at("stop:Alice"), at("close:Alice"))
	assert.Less(t, at("aborted:Alice"), at("close:Alice"), "worker joined before the voice is closed")
	assert.Less(t, at("close:Alice"), at("off:X"))
	assert.False(t, m.token.Held())
}

func mustInstance(t *testing.T, m *Manager, name string) engine.Instance {
	t.Helper()
	inst, err := m.GetVoiceInstance(name)
	require.NoError(t, err)
	return inst
}
