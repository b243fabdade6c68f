package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/worldvoice/worldvoice/internal/locale"
)

var (
	roleCmd = &cobra.Command{
		Use:   "role",
		Short: "Show or change which voice speaks each language",
		Long:  paragraph(fmt.Sprintf("\n%s the per-language voice assignments stored in the config file.", keyword("Manage"))),
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			roles := store.Roles()
			keys := make([]string, 0, len(roles))
			for k := range roles {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			styled := term.IsTerminal(int(os.Stdout.Fd()))
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, loc := range keys {
				fmt.Fprintf(tw, "%s\t%s\t%s\n",
					render(styled, localeStyle.Render, loc),
					locale.DisplayName(loc),
					render(styled, defaultStyle.Render, roles[loc]))
			}
			return tw.Flush()
		},
	}

	roleSetCmd = &cobra.Command{
		Use:     "set LOCALE VOICE",
		Short:   "Assign a voice to a language",
		Example: paragraph("worldvoice role set en_US en_US-amy-medium\nworldvoice role set fr \"Google French\""),
		Args:    cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			loc, name := locale.Normalize(args[0]), args[1]

			rt, err := newSpeechRuntime(cfg, store)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, ok := rt.manager.EngineOf(name); !ok {
				if s := suggestVoices(rt.manager, name); len(s) > 0 {
					return fmt.Errorf("unknown voice %q, did you mean %s?", name, strings.Join(quote(s), " or "))
				}
				return fmt.Errorf("unknown voice %q", name)
			}
			if err := store.SetRole(loc, name); err != nil {
				return err
			}
			fmt.Printf("%s now speaks with %s\n", keyword(loc), name)
			return nil
		},
	}

	roleUnsetCmd = &cobra.Command{
		Use:   "unset LOCALE",
		Short: "Remove a language's voice assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return store.SetRole(args[0], "")
		},
	}

	roleCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Drop assignments the selected engine cannot honour",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			before := len(store.Roles())

			rt, err := newSpeechRuntime(cfg, store)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.manager.KeepEngineConsistent(); err != nil {
				return err
			}
			fmt.Printf("%d of %d assignments kept\n", len(store.Roles()), before)
			return nil
		},
	}
)

func init() {
	roleCmd.AddCommand(roleSetCmd, roleUnsetCmd, roleCheckCmd)
}
