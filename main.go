// Package main provides the entry point for the worldvoice CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/worldvoice/worldvoice/internal/config"
	"github.com/worldvoice/worldvoice/internal/engine"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	engineFilter string
	defaultVoice string
	waitFactor   float64
	debug        bool

	// Loaded by validateOptions before any subcommand runs.
	cfg   *config.Config
	store *config.Store

	rootCmd = &cobra.Command{
		Use:   "worldvoice",
		Short: "Speak text in every language with the right voice",
		Long: paragraph(
			fmt.Sprintf("\nCoordinate several speech engines behind one voice catalog, %s.", keyword("one language at a time")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if configFile != "" && cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	var err error
	cfg, err = config.Decode(viper.GetViper())
	if err != nil {
		return err
	}
	applyDebug(cfg.Debug)

	if cfg.WaitFactor < 0 {
		return fmt.Errorf("wait factor must not be negative, got %.2f", cfg.WaitFactor)
	}
	if cfg.Ducking.Level < 0 || cfg.Ducking.Level > 1 {
		return fmt.Errorf("ducking level must be between 0 and 1, got %.2f", cfg.Ducking.Level)
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		path = configFile
	}
	store = config.NewStore(cfg, path)
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVarP(&engineFilter, "engine", "e", string(engine.FilterAll), "restrict voices to one engine (piper, gtts, mock or ALL)")
	rootCmd.PersistentFlags().StringVar(&defaultVoice, "voice", "", "default voice")
	rootCmd.PersistentFlags().Float64VarP(&waitFactor, "wait-factor", "w", 0, "extra pause after each utterance, in tenths of a second")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")

	_ = viper.BindPFlag("engine", rootCmd.PersistentFlags().Lookup("engine"))
	_ = viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("wait_factor", rootCmd.PersistentFlags().Lookup("wait-factor"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(configCmd, voicesCmd, speakCmd, roleCmd, doctorCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	if err := config.Prepare(viper.GetViper(), ""); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	dirs, err := config.ConfigDirs()
	if err != nil || len(dirs) == 0 {
		return
	}
	configFile = filepath.Join(dirs[0], config.FileName)
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}
