// Package config holds the typed configuration snapshot, locates and loads
// the configuration file and persists the speech roles and per-voice
// parameters the voice manager reads back.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/locale"
)

// Name is the application scope used for config and cache directories.
const Name = "worldvoice"

// FileName is the configuration file searched for in the config directories.
const FileName = Name + ".yml"

// Role assigns a voice to one locale.
type Role struct {
	Voice string `yaml:"voice" mapstructure:"voice"`
}

// PiperConfig configures the piper engine.
type PiperConfig struct {
	Binary   string        `yaml:"binary" mapstructure:"binary"`
	ModelDir string        `yaml:"model_dir" mapstructure:"model_dir"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GTTSConfig configures the gtts engine.
type GTTSConfig struct {
	Enabled           bool     `yaml:"enabled" mapstructure:"enabled"`
	Binary            string   `yaml:"binary" mapstructure:"binary"`
	FFmpeg            string   `yaml:"ffmpeg" mapstructure:"ffmpeg"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TLD               string   `yaml:"tld" mapstructure:"tld"`
	Languages         []string `yaml:"languages" mapstructure:"languages"`
}

// MockVoice is one voice offered by the mock engine.
type MockVoice struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Locale string `yaml:"locale" mapstructure:"locale"`
}

// MockConfig configures the mock engine.
type MockConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Voices  []MockVoice `yaml:"voices" mapstructure:"voices"`
}

// EnginesConfig groups the per-engine settings.
type EnginesConfig struct {
	Piper PiperConfig `yaml:"piper" mapstructure:"piper"`
	GTTS  GTTSConfig  `yaml:"gtts" mapstructure:"gtts"`
	Mock  MockConfig  `yaml:"mock" mapstructure:"mock"`
}

// CacheConfig configures the synthesized audio cache.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir              string `yaml:"dir" mapstructure:"dir"`
	MaxSizeMB        int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	CompressionLevel int    `yaml:"compression_level" mapstructure:"compression_level"`
}

// NotifyConfig configures where notifications are published.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// DuckingConfig configures attenuation of other audio while speaking.
type DuckingConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	Level   float64 `yaml:"level" mapstructure:"level"`
}

// Config is the typed configuration snapshot.
type Config struct {
	Engine     string  `yaml:"engine" mapstructure:"engine"`
	Voice      string  `yaml:"voice" mapstructure:"voice"`
	WaitFactor float64 `yaml:"wait_factor" mapstructure:"wait_factor"`
	Debug      bool    `yaml:"debug" mapstructure:"debug"`

	SpeechRole map[string]Role              `yaml:"speech_role" mapstructure:"speech_role"`
	Voices     map[string]engine.Parameters `yaml:"voices" mapstructure:"voices"`

	Engines EnginesConfig `yaml:"engines" mapstructure:"engines"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Ducking DuckingConfig `yaml:"ducking" mapstructure:"ducking"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine", string(engine.FilterAll))
	v.SetDefault("voice", "")
	v.SetDefault("wait_factor", 0.0)
	v.SetDefault("debug", false)

	v.SetDefault("engines.piper.binary", "piper")
	v.SetDefault("engines.piper.model_dir", "~/.local/share/piper")
	v.SetDefault("engines.piper.timeout", "30s")

	v.SetDefault("engines.gtts.enabled", true)
	v.SetDefault("engines.gtts.binary", "gtts-cli")
	v.SetDefault("engines.gtts.ffmpeg", "ffmpeg")
	v.SetDefault("engines.gtts.requests_per_minute", 50)
	v.SetDefault("engines.gtts.tld", "com")
	v.SetDefault("engines.gtts.languages", []string{})

	v.SetDefault("engines.mock.enabled", false)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_size_mb", 100)
	v.SetDefault("cache.compression_level", 3)

	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject", "worldvoice.events")

	v.SetDefault("ducking.enabled", true)
	v.SetDefault("ducking.level", 0.3)
}

// ConfigDirs returns the directories searched for the config file, most
// specific first.
func ConfigDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, Name)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, Name)}, dirs...)
	}
	if c := os.Getenv("WORLDVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// DefaultCacheDir returns the per-user cache directory.
func DefaultCacheDir() (string, error) {
	return gap.NewScope(gap.User, Name).CacheDir()
}

// Prepare points v at the config file and the WORLDVOICE environment. An
// explicit file wins over the search path.
func Prepare(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return nil
	}
	dirs, err := ConfigDirs()
	if err != nil {
		return err
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	return nil
}

// Decode builds the snapshot from v. Paths are expanded and role locales
// normalized.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	// viper lowercases map keys; voice names and locales are case sensitive.
	if path := v.ConfigFileUsed(); path != "" {
		p, err := readPersisted(path)
		if err != nil {
			return nil, err
		}
		cfg.SpeechRole = p.SpeechRole
		cfg.Voices = p.Voices
	}
	cfg.normalize()

	var err error
	if cfg.Engines.Piper.ModelDir, err = homedir.Expand(cfg.Engines.Piper.ModelDir); err != nil {
		return nil, fmt.Errorf("expand model dir: %w", err)
	}
	if cfg.Cache.Dir, err = homedir.Expand(cfg.Cache.Dir); err != nil {
		return nil, fmt.Errorf("expand cache dir: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	roles := make(map[string]Role, len(c.SpeechRole))
	for loc, r := range c.SpeechRole {
		roles[locale.Normalize(loc)] = r
	}
	c.SpeechRole = roles
	for i, v := range c.Engines.Mock.Voices {
		// Vocalizer language codes such as "ENU" are accepted as locales.
		if l, ok := locale.FromTLW(strings.ToUpper(v.Locale)); ok && len(v.Locale) == 3 {
			c.Engines.Mock.Voices[i].Locale = l
		} else {
			c.Engines.Mock.Voices[i].Locale = locale.Normalize(v.Locale)
		}
	}
	if c.Voices == nil {
		c.Voices = make(map[string]engine.Parameters)
	}
	if c.Engine == "" {
		c.Engine = string(engine.FilterAll)
	}
}

// persisted is the part of the file the store writes back.
type persisted struct {
	SpeechRole map[string]Role              `yaml:"speech_role"`
	Voices     map[string]engine.Parameters `yaml:"voices"`
}

func readPersisted(path string) (persisted, error) {
	var p persisted
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read configuration: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse configuration %s: %w", path, err)
	}
	return p, nil
}
