package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/worldvoice/worldvoice/internal/config"
	"github.com/worldvoice/worldvoice/internal/engine"
	"github.com/worldvoice/worldvoice/internal/sentence"
	"github.com/worldvoice/worldvoice/internal/voice"
)

var (
	speakLang      string
	speakName      string
	speakRate      int
	speakPitch     int
	speakVolume    int
	speakSave      bool
	speakPropagate bool
	speakMarks     bool
	speakMarkdown  bool
	speakNoSplit   bool

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT...]",
		Short: "Speak text with the voice configured for a language",
		Long: paragraph(fmt.Sprintf("\n%s the arguments, or standard input one line at a time. "+
			"The voice is the one assigned to --lang, falling back to its base language and then to the default voice. "+
			"Ctrl+C silences speech immediately.", keyword("Speak"))),
		Example: paragraph("worldvoice speak Hello\nworldvoice speak --lang fr_FR Bonjour\ncat notes.txt | worldvoice speak --lang de"),
		RunE:    runSpeak,
	}
)

func init() {
	speakCmd.Flags().StringVarP(&speakLang, "lang", "l", "", "language to resolve the voice for, e.g. en_US")
	speakCmd.Flags().StringVarP(&speakName, "name", "n", "", "speak with this voice, ignoring --lang")
	speakCmd.Flags().IntVar(&speakRate, "rate", -1, "rate 0-100 (-1 keeps the saved value)")
	speakCmd.Flags().IntVar(&speakPitch, "pitch", -1, "pitch 0-100 (-1 keeps the saved value)")
	speakCmd.Flags().IntVar(&speakVolume, "volume", -1, "volume 0-100 (-1 keeps the saved value)")
	speakCmd.Flags().BoolVar(&speakSave, "save", false, "persist the voice parameters")
	speakCmd.Flags().BoolVar(&speakPropagate, "propagate", false, "apply the voice parameters to every voice")
	speakCmd.Flags().BoolVar(&speakMarks, "marks", false, "report an index after each utterance")
	speakCmd.Flags().BoolVarP(&speakMarkdown, "markdown", "m", false, "strip markdown syntax before speaking")
	speakCmd.Flags().BoolVar(&speakNoSplit, "no-split", false, "speak each line whole instead of sentence by sentence")
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// utterances turns input lines into the strings handed to the voice.
func utterances(lines []string, markdown, split bool) []string {
	if markdown {
		return sentence.Splitter{Markdown: true, MinLength: 1}.Split(strings.Join(lines, "\n"))
	}
	if !split {
		return lines
	}
	var out []string
	for _, line := range lines {
		out = append(out, sentence.Split(line)...)
	}
	return out
}

// readLines returns the non-blank lines to speak.
func readLines(args []string, in io.Reader) ([]string, error) {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}, nil
	}
	var lines []string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("unable to read input: %w", err)
	}
	return lines, nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	var in io.Reader = strings.NewReader("")
	if len(args) == 0 {
		if yes, err := stdinIsPipe(); err != nil {
			return err
		} else if !yes {
			return errors.New("nothing to speak: pass text or pipe it on standard input")
		}
		in = os.Stdin
	}
	lines, err := readLines(args, in)
	if err != nil {
		return err
	}
	lines = utterances(lines, speakMarkdown, !speakNoSplit)
	if len(lines) == 0 {
		return errors.New("nothing to speak")
	}

	rt, err := newSpeechRuntime(cfg, store)
	if err != nil {
		return err
	}
	defer rt.Close()
	m := rt.manager

	if store.Path() != "" {
		w, err := config.Watch(store, m.Reload)
		if err != nil {
			log.Debug("Not watching configuration", "err", err)
		} else {
			defer w.Close() //nolint:errcheck
		}
	}

	inst, err := pickVoice(m)
	if err != nil {
		return err
	}
	if err := applyParameters(m, inst); err != nil {
		return err
	}
	log.Debug("Speaking", "voice", inst.Name(), "engine", inst.Engine(), "utterances", len(lines))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		m.Cancel()
	}()

	baseline := rt.done.count()
	sent := 0
	for i, line := range lines {
		if ctx.Err() != nil {
			break
		}
		if err := inst.Speak(line); err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("unable to speak: %w", err)
		}
		sent++
		if speakMarks {
			if err := inst.SpeakIndex(i + 1); err != nil && ctx.Err() == nil {
				return fmt.Errorf("unable to queue index: %w", err)
			}
			sent++
		}
	}

	if err := m.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !rt.done.waitFor(baseline+sent, ctx.Done()) {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Speech cancelled"))
	}
	return nil
}

func pickVoice(m *voice.Manager) (engine.Instance, error) {
	if speakName == "" {
		if speakLang == "" {
			return m.DefaultInstance()
		}
		return m.VoiceInstanceForLanguage(speakLang)
	}

	inst, err := m.GetVoiceInstance(speakName)
	if errors.Is(err, engine.ErrUnknownVoice) {
		if s := suggestVoices(m, speakName); len(s) > 0 {
			return nil, fmt.Errorf("unknown voice %q, did you mean %s?", speakName, strings.Join(quote(s), " or "))
		}
		return nil, fmt.Errorf("unknown voice %q: run 'worldvoice voices' to list them", speakName)
	}
	return inst, err
}

func applyParameters(m *voice.Manager, inst engine.Instance) error {
	if speakRate >= 0 {
		inst.SetRate(speakRate)
	}
	if speakPitch >= 0 {
		inst.SetPitch(speakPitch)
	}
	if speakVolume >= 0 {
		inst.SetVolume(speakVolume)
	}
	if speakPropagate {
		if err := m.PropagateParameters(inst); err != nil {
			return fmt.Errorf("unable to propagate parameters: %w", err)
		}
	}
	if speakSave {
		if err := inst.Commit(); err != nil {
			return fmt.Errorf("unable to save voice parameters: %w", err)
		}
	}
	return nil
}

// closest ranks candidates by fuzzy match against name and returns at most n.
func closest(name string, candidates []string, n int) []string {
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		matches = fuzzy.Find(strings.ToLower(name), lower(candidates))
	}
	out := make([]string, 0, n)
	for _, match := range matches {
		if len(out) == n {
			break
		}
		out = append(out, candidates[match.Index])
	}
	return out
}

func lower(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func quote(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
