package voice

import "github.com/worldvoice/worldvoice/internal/engine"

// VoiceInfos returns the unfiltered catalog in (engine, locale, name) order.
func (m *Manager) VoiceInfos() []engine.VoiceDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.full.descriptors()
}

// VoiceInfosFiltered returns the catalog restricted to the engine filter.
func (m *Manager) VoiceInfosFiltered() []engine.VoiceDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filtered.descriptors()
}

// Languages returns every locale and base language with at least one voice.
func (m *Manager) Languages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.full.languages()
}

func (m *Manager) LanguagesFiltered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filtered.languages()
}

// LocaleToVoices maps locales and base languages to voice names.
func (m *Manager) LocaleToVoices() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.full.localeMap()
}

func (m *Manager) LocaleToVoicesFiltered() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filtered.localeMap()
}

// LocaleNames maps every known locale to a readable description.
func (m *Manager) LocaleNames() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.full.localeNames()
}

func (m *Manager) LocaleNamesFiltered() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filtered.localeNames()
}

// EngineOf returns the engine that offers name.
func (m *Manager) EngineOf(name string) (engine.Tag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.full.byName[name]
	return d.Engine, ok
}

// Engines returns the tags of the engines that activated.
func (m *Manager) Engines() []engine.Tag {
	return append([]engine.Tag(nil), m.active...)
}

// Cached returns the names of voices with a live instance.
func (m *Manager) Cached() []string {
	insts := m.instances()
	names := make([]string, len(insts))
	for i, inst := range insts {
		names[i] = inst.Name()
	}
	return names
}
