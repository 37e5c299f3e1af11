package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/docstore"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the effective settings",
	Long: "Show the settings the daemon would run with, as TOML. Keys that are\n" +
		"missing or invalid in the settings document are reported on stderr\n" +
		"and shown with their defaults.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, warnings := config.LoadSettings(paths().Settings)
		return writeSettings(cmd.OutOrStdout(), cmd.ErrOrStderr(), s, warnings)
	},
}

func writeSettings(out, errOut io.Writer, s config.Settings, warnings config.ValidationErrors) error {
	for _, w := range warnings {
		fmt.Fprintf(errOut, "warning: %s: %s\n", w.Field, w.Message)
	}
	if len(warnings) > 0 {
		fmt.Fprintf(errOut, "defaults used for: %s\n", strings.Join(warnings.Fields(), ", "))
	}

	data, err := docstore.Encode(s.Document(), docstore.FormatTOML)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = out.Write(data)
	return err
}
