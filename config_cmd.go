package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/worldvoice/worldvoice/internal/config"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/engines/gtts"
	"github.com/worldvoice/worldvoice/internal/engines/mock"
	"github.com/worldvoice/worldvoice/internal/engines/piper"
)

const defaultConfig = `# engine filter: ALL, piper, gtts or mock
engine: "ALL"
# default voice, empty for the first voice in the catalog
voice: ""
# extra pause after each utterance, in tenths of a second
wait_factor: 0
debug: false

# voice per language, keyed by locale
speech_role: {}
#  en_US:
#    voice: "en_US-amy-medium"
#  fr:
#    voice: "Google French"

# persisted voice parameters, written by worldvoice
voices: {}

engines:
  piper:
    binary: "piper"
    model_dir: "~/.local/share/piper"
    timeout: "30s"
  gtts:
    enabled: true
    binary: "gtts-cli"
    ffmpeg: "ffmpeg"
    requests_per_minute: 50
    tld: "com"
    # languages: ["en", "fr", "de"]
  mock:
    enabled: false
    voices: []

cache:
  enabled: true
  # dir: "~/.cache/worldvoice"
  max_size_mb: 100
  compression_level: 3

notify:
  # nats_url: "nats://127.0.0.1:4222"
  subject: "worldvoice.events"

ducking:
  enabled: true
  level: 0.3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the worldvoice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the worldvoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("worldvoice config\nworldvoice config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("worldvoice", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		if err := checkConfigFile(configFile); err != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render("The config file has problems: "+err.Error()))
			return err
		}
		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// checkConfigFile decodes path on its own so edits are validated before the
// next command reads them.
func checkConfigFile(path string) error {
	v := viper.New()
	if err := config.Prepare(v, path); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to parse %s: %w", path, err)
	}
	c, err := config.Decode(v)
	if err != nil {
		return err
	}
	switch engine.Tag(c.Engine) {
	case engine.FilterAll, piper.Tag, gtts.Tag, mock.Tag:
		return nil
	}
	return fmt.Errorf("%w: %q", engine.ErrInvalidEngineFilter, c.Engine)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		dirs, err := config.ConfigDirs()
		if err != nil {
			return err
		}
		configFile = filepath.Join(dirs[0], config.FileName)
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
		log.Info("Created default configuration", "path", configFile)
	case err != nil:
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
