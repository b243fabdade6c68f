// Package voice is the voice registry. It activates the available engines,
// merges their voices into one catalog, resolves languages to voices and keeps
// exactly one live instance per voice for the lifetime of the process.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/locale"
	"github.com/worldvoice/worldvoice/internal/queue"
)

// RoleStore is the per-language voice assignment, keyed by normalized locale.
type RoleStore interface {
	RoleVoice(locale string) (string, bool)
	Roles() map[string]string
	ReplaceRoles(roles map[string]string) error
}

type state int

const (
	stateConstructing state = iota
	stateReady
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateConstructing:
		return "constructing"
	case stateReady:
		return "ready"
	default:
		return "terminated"
	}
}

// Options configures a Manager.
type Options struct {
	// Roles supplies configured voices per language. Nil means none.
	Roles RoleStore
	// EngineFilter restricts the filtered views to one engine. Empty means all.
	EngineFilter engine.Tag
	// DefaultVoice replaces the first catalog entry as default if it exists.
	DefaultVoice string
	// WaitFactor is applied to every instance the manager creates.
	WaitFactor float64
}

// Manager is the voice registry. All methods are safe for concurrent use.
type Manager struct {
	token   *engine.Token
	roles   RoleStore
	caps    map[engine.Tag]engine.Capability
	active  []engine.Tag
	workers map[engine.Tag]*queue.Worker

	mu          sync.RWMutex
	state       state
	filter      engine.Tag
	full        *index
	filtered    *index
	cache       map[string]engine.Instance
	defaultName string
	waitFactor  float64
}

// Ready reports whether at least one capability could be activated.
func Ready(caps []engine.Capability) bool {
	for _, c := range caps {
		if c.Ready() {
			return true
		}
	}
	return false
}

// New activates every ready capability, builds the catalog from the ones that
// came up and materializes the default voice. Activation failures are isolated
// per engine and logged. New fails only when no voice is available at all.
func New(caps []engine.Capability, opts Options) (*Manager, error) {
	m := &Manager{
		token:      engine.NewToken(),
		roles:      opts.Roles,
		caps:       make(map[engine.Tag]engine.Capability, len(caps)),
		workers:    make(map[engine.Tag]*queue.Worker),
		state:      stateConstructing,
		filter:     engine.FilterAll,
		cache:      make(map[string]engine.Instance),
		waitFactor: opts.WaitFactor,
	}
	if m.roles == nil {
		m.roles = emptyRoles{}
	}

	var failures []error
	for _, c := range caps {
		tag := c.Tag()
		if _, dup := m.caps[tag]; dup {
			failures = append(failures, engine.Unavailable(tag, errors.New("duplicate engine tag")))
			continue
		}
		if err := activate(c, m.token); err != nil {
			failures = append(failures, err)
			continue
		}
		m.caps[tag] = c
		m.active = append(m.active, tag)
		m.workers[tag] = queue.NewWorker(string(tag), m.token)
	}
	if len(failures) > 0 {
		log.Warn("Some speech engines are unavailable", "err", errors.Join(failures...))
	}

	catalog := m.enumerate()
	if len(catalog) == 0 {
		m.shutdown()
		return nil, errors.Join(append([]error{engine.ErrNoVoices}, failures...)...)
	}

	m.full = buildIndex(catalog)
	m.filtered = m.full
	m.state = stateReady

	m.defaultName = catalog[0].Name
	if _, err := m.GetVoiceInstance(m.defaultName); err != nil {
		m.Terminate()
		return nil, fmt.Errorf("could not create default voice %s: %w", m.defaultName, err)
	}

	if opts.EngineFilter != "" && opts.EngineFilter != engine.FilterAll {
		if err := m.SetEngineFilter(opts.EngineFilter); err != nil {
			log.Warn("Ignoring engine filter", "engine", opts.EngineFilter, "err", err)
		}
	}
	if opts.DefaultVoice != "" {
		m.SetDefaultVoice(opts.DefaultVoice)
	}

	log.Info("Voice manager ready",
		"engines", len(m.active),
		"voices", len(catalog),
		"default", m.DefaultVoice())
	return m, nil
}

func activate(c engine.Capability, token *engine.Token) (err error) {
	tag := c.Tag()
	defer func() {
		if r := recover(); r != nil {
			err = engine.Unavailable(tag, fmt.Errorf("panic: %v", r))
		}
	}()

	if !c.Ready() {
		return engine.Unavailable(tag, errors.New("not ready"))
	}
	if err := c.EngineOn(token); err != nil {
		return engine.Unavailable(tag, err)
	}
	log.Debug("Engine activated", "engine", tag)
	return nil
}

// enumerate collects voices from the active engines. Voice names are unique
// across engines; a later duplicate is dropped.
func (m *Manager) enumerate() []engine.VoiceDescriptor {
	var catalog []engine.VoiceDescriptor
	seen := make(map[string]engine.Tag)

	for _, tag := range m.active {
		for _, d := range m.caps[tag].Voices() {
			if owner, dup := seen[d.Name]; dup {
				log.Warn("Duplicate voice name", "voice", d.Name, "engine", tag, "kept", owner)
				continue
			}
			seen[d.Name] = tag
			d.Engine = tag
			if d.Locale == "" {
				d.Locale = d.Language
			}
			d.Locale = locale.Normalize(d.Locale)
			catalog = append(catalog, d)
		}
	}
	sortCatalog(catalog)
	return catalog
}

// GetVoiceInstance returns the cached instance for name, creating, loading and
// caching it on first use.
func (m *Manager) GetVoiceInstance(name string) (engine.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateTerminated {
		return nil, engine.ErrTerminated
	}
	if inst, ok := m.cache[name]; ok {
		return inst, nil
	}

	desc, ok := m.full.byName[name]
	if !ok {
		return nil, engine.NewError(engine.KindUnknownVoice, fmt.Sprintf("voice %q not in catalog", name), engine.ErrUnknownVoice).
			WithContext("voice", name)
	}

	inst, err := m.caps[desc.Engine].CreateInstance(desc, m.workers[desc.Engine])
	if err != nil {
		return nil, fmt.Errorf("create voice %s on %s: %w", name, desc.Engine, err)
	}
	if err := inst.LoadParameter(); err != nil {
		log.Warn("Could not load voice parameters", "voice", name, "err", err)
	}
	inst.SetWaitFactor(m.waitFactor)

	m.cache[name] = inst
	log.Debug("Voice instance created", "voice", name, "engine", desc.Engine)
	return inst, nil
}

// DefaultVoice returns the name of the default voice.
func (m *Manager) DefaultVoice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// DefaultInstance returns the default voice's instance.
func (m *Manager) DefaultInstance() (engine.Instance, error) {
	return m.GetVoiceInstance(m.DefaultVoice())
}

// SetDefaultVoice makes name the default voice. An unknown name is logged and
// the previous default kept. It reports whether the default changed.
func (m *Manager) SetDefaultVoice(name string) bool {
	m.mu.RLock()
	known := m.state == stateReady && m.full.has(name)
	m.mu.RUnlock()

	if !known {
		log.Warn("Voice not available, keeping default", "voice", name, "default", m.DefaultVoice())
		return false
	}
	if _, err := m.GetVoiceInstance(name); err != nil {
		log.Warn("Could not create voice, keeping default", "voice", name, "err", err)
		return false
	}

	m.mu.Lock()
	m.defaultName = name
	m.mu.Unlock()
	return true
}

// EngineFilter returns the current engine filter.
func (m *Manager) EngineFilter() engine.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter
}

// SetEngineFilter restricts the filtered views to tag, or lifts the
// restriction for FilterAll. An unknown tag leaves the current filter in place.
func (m *Manager) SetEngineFilter(tag engine.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tag != engine.FilterAll {
		if _, ok := m.caps[tag]; !ok {
			return engine.NewError(engine.KindInvalidEngineFilter, fmt.Sprintf("engine %q is not available", tag), engine.ErrInvalidEngineFilter).
				WithContext("engine", string(tag))
		}
	}

	m.filter = tag
	m.filtered = m.full.filter(tag)
	log.Debug("Engine filter changed", "engine", tag, "voices", len(m.filtered.catalog))
	return nil
}

// ResolveVoiceForLanguage returns the voice configured for lang, falling back
// to the one configured for its base language and finally to the default
// voice. Configured voices that are not in the catalog are ignored.
func (m *Manager) ResolveVoiceForLanguage(lang string) string {
	lang = locale.Normalize(lang)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.roles.RoleVoice(lang); ok && m.full.has(v) {
		return v
	}
	if locale.HasRegion(lang) {
		if v, ok := m.roles.RoleVoice(locale.Base(lang)); ok && m.full.has(v) {
			return v
		}
	}
	return m.defaultName
}

// VoiceInstanceForLanguage resolves lang and returns the voice's instance.
func (m *Manager) VoiceInstanceForLanguage(lang string) (engine.Instance, error) {
	return m.GetVoiceInstance(m.ResolveVoiceForLanguage(lang))
}

func (m *Manager) instances() []engine.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.cache))
	for name := range m.cache {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]engine.Instance, 0, len(names))
	for _, name := range names {
		out = append(out, m.cache[name])
	}
	return out
}

// PropagateParameters copies rate, pitch and volume from src to every cached
// instance and persists each one.
func (m *Manager) PropagateParameters(src engine.Instance) error {
	rate, pitch, volume := src.Rate(), src.Pitch(), src.Volume()

	var errs []error
	for _, inst := range m.instances() {
		inst.SetRate(rate)
		inst.SetPitch(pitch)
		inst.SetVolume(volume)
		if err := inst.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", inst.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// WaitFactor returns the registry-wide wait factor.
func (m *Manager) WaitFactor() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waitFactor
}

// SetWaitFactor stores value and pushes it to every cached instance, persisting
// each exactly once. Instances created later pick it up on creation.
func (m *Manager) SetWaitFactor(value float64) error {
	m.mu.Lock()
	m.waitFactor = value
	m.mu.Unlock()

	var errs []error
	for _, inst := range m.instances() {
		inst.SetWaitFactor(value)
		if err := inst.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", inst.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Cancel silences speech: pending tasks are discarded without running so
// nothing new reaches an engine, the default voice is stopped, then every
// other cached instance. Each stopped utterance gives back its own token
// hold; a hold taken by an utterance accepted after the stop is left alone.
// It does not wait for engines.
func (m *Manager) Cancel() {
	m.mu.RLock()
	if m.state != stateReady {
		m.mu.RUnlock()
		return
	}
	def := m.cache[m.defaultName]
	m.mu.RUnlock()

	dropped := 0
	for _, tag := range m.active {
		dropped += m.workers[tag].Cancel()
	}

	stopped := 0
	if def != nil {
		stop(def)
		stopped++
	}

	for _, inst := range m.instances() {
		if inst != def {
			stop(inst)
			stopped++
		}
	}

	log.Debug("Speech cancelled", "dropped", dropped, "stopped", stopped)
}

func stop(inst engine.Instance) {
	if err := inst.Stop(); err != nil {
		log.Warn("Could not stop voice", "voice", inst.Name(), "err", err)
	}
}

// Wait blocks until every queued task on every engine has finished or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	for _, tag := range m.active {
		if err := m.workers[tag].Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
