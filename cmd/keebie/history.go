package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"keebie/internal/journal"
)

var (
	historyDevice string
	historyLimit  int
	historyPrune  time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the macros the daemon executed",
	Long:  "Show the most recent macro executions. Requires journal = true in the settings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paths()
		if _, err := os.Stat(p.Journal); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(cmd.OutOrStdout(), "journal is empty (enable it with journal = true)")
			return nil
		}

		j, err := journal.Open(p.Journal)
		if err != nil {
			return err
		}
		defer j.Close()

		if historyPrune > 0 {
			n, err := j.Prune(time.Now().Add(-historyPrune))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d entries\n", n)
		}

		entries, err := j.Recent(historyDevice, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tDEVICE\tLAYER\tHISTORY\tACTION\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.At.Local().Format("2006-01-02 15:04:05"), e.Device, e.Layer, e.History, e.Action, e.Error)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyDevice, "device", "d", "", "Only show this device")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete entries older than this first (e.g. 720h)")
}
