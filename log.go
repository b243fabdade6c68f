package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// logOptions are environment-only debugging knobs.
type logOptions struct {
	File   string `env:"WORLDVOICE_LOG_FILE"`
	Level  string `env:"WORLDVOICE_LOG_LEVEL" envDefault:"warn"`
	Caller bool   `env:"WORLDVOICE_LOG_CALLER"`
}

// setupLog points the package logger at stderr or at WORLDVOICE_LOG_FILE.
// The returned func closes the log file.
func setupLog() (func() error, error) {
	opts, err := env.ParseAs[logOptions]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid WORLDVOICE_LOG_LEVEL %q: %w", opts.Level, err)
	}

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		log.SetLevel(level)
		log.SetReportCaller(opts.Caller)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetDefault(log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		ReportCaller:    opts.Caller,
		Level:           level,
	}))
	return f.Close, nil
}

// applyDebug raises the log level when --debug or the debug key is set.
func applyDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}
