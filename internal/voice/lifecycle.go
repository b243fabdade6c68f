package voice

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/engine"
)

// Reload re-reads persisted parameters into every cached instance.
func (m *Manager) Reload() {
	for _, inst := range m.instances() {
		if err := inst.LoadParameter(); err != nil {
			log.Warn("Could not reload voice parameters", "voice", inst.Name(), "err", err)
		}
	}
}

// KeepEngineConsistent drops configured language assignments that the current
// engine filter cannot honour: the locale has no voice under the filter, or
// the configured voice is not among them. Dropped entries are logged and the
// rest written back through the role store.
func (m *Manager) KeepEngineConsistent() error {
	m.mu.RLock()
	filtered := m.filtered
	filter := m.filter
	m.mu.RUnlock()

	roles := m.roles.Roles()
	kept := make(map[string]string, len(roles))
	dropped := 0
	for loc, voiceName := range roles {
		names, ok := filtered.locales[loc]
		if !ok || (voiceName != "" && !contains(names, voiceName)) {
			log.Info("Voice not available on engine",
				"locale", loc,
				"voice", voiceName,
				"engine", filter)
			dropped++
			continue
		}
		kept[loc] = voiceName
	}

	if dropped == 0 {
		return nil
	}
	if err := m.roles.ReplaceRoles(kept); err != nil {
		return fmt.Errorf("write back speech roles: %w", err)
	}
	return nil
}

// Terminate stops the playback workers, persists and closes every cached
// instance and deactivates every engine, in that order, so no instance is
// closed under a running dispatch. Failures are logged per instance and per
// engine; teardown always runs to the end. Later calls do nothing.
func (m *Manager) Terminate() {
	m.mu.Lock()
	if m.state == stateTerminated {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = stateTerminated
	cache := m.cache
	m.cache = make(map[string]engine.Instance)
	m.mu.Unlock()

	m.cancelWorkers()
	// Stopping aborts a synthesis in progress so the workers can be joined.
	for _, inst := range cache {
		stop(inst)
	}
	m.joinWorkers()

	for name, inst := range cache {
		if err := inst.Commit(); err != nil {
			log.Warn("Could not save voice parameters", "voice", name, "err", err)
		}
		if err := inst.Close(); err != nil {
			log.Warn("Could not close voice", "voice", name, "err", err)
		}
	}

	m.deactivateEngines()
	log.Debug("Voice manager terminated", "from", prev)
}

// shutdown stops the workers, then deactivates engines. Workers are joined
// first so no engine sees a dispatch after EngineOff.
func (m *Manager) shutdown() {
	m.cancelWorkers()
	m.joinWorkers()
	m.deactivateEngines()
}

func (m *Manager) cancelWorkers() {
	for _, tag := range m.active {
		m.workers[tag].Cancel()
	}
}

func (m *Manager) joinWorkers() {
	for _, tag := range m.active {
		m.workers[tag].Stop()
	}
}

// deactivateEngines turns every engine off. A hold still outstanding belongs
// to an utterance nothing will signal for any more, so it is reset first.
func (m *Manager) deactivateEngines() {
	if m.token.Reset() {
		log.Debug("Released exclusion token on shutdown")
	}

	var errs []error
	for _, tag := range m.active {
		if err := deactivate(m.caps[tag]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		log.Warn("Engines reported errors on shutdown", "err", errors.Join(errs...))
	}
}

func deactivate(c engine.Capability) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine %s: panic: %v", c.Tag(), r)
		}
	}()
	if err := c.EngineOff(); err != nil {
		return fmt.Errorf("engine %s: %w", c.Tag(), err)
	}
	return nil
}

// Terminated reports whether Terminate has run.
func (m *Manager) Terminated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateTerminated
}

type emptyRoles struct{}

func (emptyRoles) RoleVoice(string) (string, bool)      { return "", false }
func (emptyRoles) Roles() map[string]string             { return map[string]string{} }
func (emptyRoles) ReplaceRoles(map[string]string) error { return nil }
