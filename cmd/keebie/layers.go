package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/docstore"
	"keebie/internal/layer"
)

var layersCmd = &cobra.Command{
	Use:   "layers [name...]",
	Short: "Show layers and their bindings",
	Long:  "Show every layer, or the named ones, with bindings, variables and indicator LEDs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paths()
		s, _ := config.LoadSettings(p.Settings)
		log, err := companionLogger(s, p, "layers")
		if err != nil {
			return err
		}
		defer log.Close()

		store := layer.NewStore(docstore.New(p.Layers, docstore.FormatJSON), log.Logger)
		names := args
		if len(names) == 0 {
			if names, err = store.Names(); err != nil {
				return err
			}
		}
		if len(names) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no layers in %s\n", p.Layers)
			return nil
		}

		for i, name := range names {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			printLayer(cmd.OutOrStdout(), store.Load(name))
		}
		return nil
	},
}

func printLayer(out io.Writer, l *layer.Layer) {
	fmt.Fprintln(out, l.Name)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, chord := range slices.Sorted(maps.Keys(l.Bindings)) {
		fmt.Fprintf(w, "  %s\t%s\n", chord, l.Bindings[chord])
	}
	w.Flush()

	if len(l.Vars) > 0 {
		vars := make([]string, 0, len(l.Vars))
		for _, k := range slices.Sorted(maps.Keys(l.Vars)) {
			vars = append(vars, k+"="+l.Vars[k])
		}
		fmt.Fprintf(out, "  vars: %s\n", strings.Join(vars, " "))
	}
	if len(l.LEDs) > 0 {
		leds := make([]string, 0, len(l.LEDs))
		for _, code := range l.LEDs {
			leds = append(leds, layer.LEDName(code))
		}
		fmt.Fprintf(out, "  leds: %s\n", strings.Join(leds, " "))
	}
}
