package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/worldvoice/worldvoice/internal/voice"
)

var (
	listAll       bool
	listLanguages bool

	voicesCmd = &cobra.Command{
		Use:   "voices",
		Short: "List the available voices",
		Long: paragraph(fmt.Sprintf("\n%s the voices every ready engine offers, sorted by engine, locale and name. "+
			"Only voices of the selected engine are shown unless --all is given.", keyword("List"))),
		Example: paragraph("worldvoice voices\nworldvoice voices --engine piper\nworldvoice voices --languages"),
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			rt, err := newSpeechRuntime(cfg, store)
			if err != nil {
				return err
			}
			defer rt.Close()

			styled := term.IsTerminal(int(os.Stdout.Fd()))
			if listLanguages {
				return printLanguages(os.Stdout, rt.manager, styled)
			}
			if err := printVoices(os.Stdout, rt.manager, styled); err != nil {
				return err
			}
			if rt.cache != nil {
				printCacheStats(os.Stdout, rt, styled)
			}
			return nil
		},
	}
)

func init() {
	voicesCmd.Flags().BoolVarP(&listAll, "all", "a", false, "ignore the engine filter")
	voicesCmd.Flags().BoolVarP(&listLanguages, "languages", "l", false, "list languages with their voices instead")
}

func render(styled bool, style func(...string) string, s string) string {
	if !styled {
		return s
	}
	return style(s)
}

func printVoices(w io.Writer, m *voice.Manager, styled bool) error {
	infos := m.VoiceInfosFiltered()
	if listAll {
		infos = m.VoiceInfos()
	}
	def := m.DefaultVoice()

	if styled {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d voices, engine filter %s", len(infos), m.EngineFilter())))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, v := range infos {
		name := v.Name
		if name == def {
			name = render(styled, defaultStyle.Render, name+" *")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			name,
			render(styled, engineStyle.Render, string(v.Engine)),
			render(styled, localeStyle.Render, v.Locale),
			v.Description)
	}
	return tw.Flush()
}

func printLanguages(w io.Writer, m *voice.Manager, styled bool) error {
	locales := m.LocaleToVoicesFiltered()
	names := m.LocaleNamesFiltered()
	if listAll {
		locales = m.LocaleToVoices()
		names = m.LocaleNames()
	}

	keys := make([]string, 0, len(locales))
	for k := range locales {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, loc := range keys {
		resolved := m.ResolveVoiceForLanguage(loc)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			render(styled, localeStyle.Render, loc),
			names[loc],
			render(styled, defaultStyle.Render, resolved),
			strings.Join(locales[loc], ", "))
	}
	return tw.Flush()
}

func printCacheStats(w io.Writer, rt *speechRuntime, styled bool) {
	s := rt.cache.Stats()
	line := fmt.Sprintf("cache: %s of %s on disk, %s entries",
		humanize.Bytes(uint64(max(s.Disk.Size, 0))),
		humanize.Bytes(uint64(max(s.Disk.Capacity, 0))),
		humanize.Comma(s.Disk.Items))
	fmt.Fprintln(w, render(styled, localeStyle.Render, line))
}

// suggestVoices returns the catalog names closest to name.
func suggestVoices(m *voice.Manager, name string) []string {
	infos := m.VoiceInfos()
	names := make([]string, len(infos))
	for i, v := range infos {
		names[i] = v.Name
	}
	return closest(name, names, 3)
}
