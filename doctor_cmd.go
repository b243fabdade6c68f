package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/worldvoice/worldvoice/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the tools and audio output the speech engines need",
	Long:  paragraph(fmt.Sprintf("\n%s that piper, gtts-cli, ffmpeg and an audio device are available.", keyword("Check"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		r := doctor.New(doctor.Options{
			Piper:    cfg.Engines.Piper.Binary,
			ModelDir: cfg.Engines.Piper.ModelDir,
			GTTS:     cfg.Engines.GTTS.Binary,
			FFmpeg:   cfg.Engines.GTTS.FFmpeg,
		})
		ok := r.Run()
		fmt.Print(r.Render(term.IsTerminal(int(os.Stdout.Fd()))))
		if !ok {
			return errors.New("required dependencies are missing")
		}
		if !r.Ready("piper") && !r.Ready("gtts") {
			return errors.New("no speech engine has its tools installed")
		}
		return nil
	},
}
