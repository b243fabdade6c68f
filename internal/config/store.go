package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/locale"
)

// Store is the accessor the voice manager and the voice instances persist
// through. It owns the speech roles and per-voice parameters of a snapshot
// and writes them back to the config file, leaving every other key as the
// user wrote it. A store with no path keeps everything in memory.
type Store struct {
	path string

	mu        sync.RWMutex
	roles     map[string]Role
	voices    map[string]engine.Parameters
	lastWrite []byte
}

// NewStore creates a store seeded from cfg.
func NewStore(cfg *Config, path string) *Store {
	s := &Store{
		path:   path,
		roles:  make(map[string]Role),
		voices: make(map[string]engine.Parameters),
	}
	if cfg != nil {
		maps.Copy(s.roles, cfg.SpeechRole)
		maps.Copy(s.voices, cfg.Voices)
	}
	return s
}

// Path returns the file the store persists to.
func (s *Store) Path() string { return s.path }

// LoadVoice implements engine.ParameterStore.
func (s *Store) LoadVoice(name string) (engine.Parameters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.voices[name]
	return p, ok
}

// SaveVoice implements engine.ParameterStore.
func (s *Store) SaveVoice(name string, p engine.Parameters) error {
	s.mu.Lock()
	if cur, ok := s.voices[name]; ok && cur == p {
		s.mu.Unlock()
		return nil
	}
	s.voices[name] = p
	s.mu.Unlock()
	return s.Save()
}

// RoleVoice implements voice.RoleStore.
func (s *Store) RoleVoice(loc string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[loc]
	if !ok || r.Voice == "" {
		return "", false
	}
	return r.Voice, true
}

// Roles implements voice.RoleStore.
func (s *Store) Roles() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.roles))
	for loc, r := range s.roles {
		out[loc] = r.Voice
	}
	return out
}

// ReplaceRoles implements voice.RoleStore.
func (s *Store) ReplaceRoles(roles map[string]string) error {
	next := make(map[string]Role, len(roles))
	for loc, name := range roles {
		next[locale.Normalize(loc)] = Role{Voice: name}
	}
	s.mu.Lock()
	s.roles = next
	s.mu.Unlock()
	return s.Save()
}

// SetRole assigns name to loc. An empty name removes the assignment.
func (s *Store) SetRole(loc, name string) error {
	loc = locale.Normalize(loc)
	s.mu.Lock()
	if name == "" {
		delete(s.roles, loc)
	} else {
		s.roles[loc] = Role{Voice: name}
	}
	s.mu.Unlock()
	return s.Save()
}

// Save writes the roles and voice parameters into the config file.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]interface{}{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read configuration: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse configuration %s: %w", s.path, err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
	}

	doc["speech_role"] = s.roles
	doc["voices"] = s.voices

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	if err := writeAtomic(s.path, out); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	s.lastWrite = out
	log.Debug("Saved voice configuration", "path", s.path, "roles", len(s.roles), "voices", len(s.voices))
	return nil
}

// Reload re-reads the roles and voice parameters from the file. It reports
// false when the file is the one the store last wrote.
func (s *Store) Reload() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("read configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Equal(data, s.lastWrite) {
		return false, nil
	}

	var p persisted
	if err := yaml.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("parse configuration %s: %w", s.path, err)
	}
	cfg := Config{SpeechRole: p.SpeechRole, Voices: p.Voices}
	cfg.normalize()
	s.roles = cfg.SpeechRole
	s.voices = cfg.Voices
	return true, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".worldvoice-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
