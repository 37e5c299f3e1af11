//go:build linux

package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/device"
	"keebie/internal/evdev"
)

var openDevice device.Opener = evdev.Open

const inputDir = evdev.InputDir

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the input devices of this machine",
	Long: `List the evdev nodes under /dev/input with their kernel names, and the
configured macro devices they back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := evdev.List(evdev.InputDir)
		if err != nil {
			return err
		}
		configs, _ := config.LoadDevices(paths().Devices)
		byPath := make(map[string]string, len(configs))
		for name, cfg := range configs {
			byPath[cfg.Event] = name
			if target, err := filepath.EvalSymlinks(cfg.Event); err == nil {
				byPath[target] = name
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tNAME\tMACRO DEVICE")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\n", info.Path, info.Name, byPath[info.Path])
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
