package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/daemon"
	"keebie/internal/logging"
)

var errNotRunning = errors.New("keebie is not running")

var (
	statusMetrics bool
	statusFormat  string
)

func init() {
	statusCmd.Flags().BoolVarP(&statusMetrics, "metrics", "m", false, "Show the daemon's metrics")
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "Metrics format: table or prom")
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Release the devices of a running daemon",
	Long:  "Release the devices of a running daemon. It stays paused until 'keebie resume'.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paths()
		s, _ := config.LoadSettings(p.Settings)
		if err := newCompanion(p, s).Pause(); err != nil {
			return notRunning(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "keebie paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Let a paused daemon take its devices back",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paths()
		s, _ := config.LoadSettings(p.Settings)
		pid, err := newCompanion(p, s).Send(syscall.SIGUSR2)
		if err != nil {
			return notRunning(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "keebie resumed (pid %d)\n", pid)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paths()
		s, _ := config.LoadSettings(p.Settings)
		if err := newCompanion(p, s).Stop(); err != nil {
			return notRunning(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "keebie stopped")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon runs and what it holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paths()
		out := cmd.OutOrStdout()
		if statusFormat != "table" && statusFormat != "prom" {
			return fmt.Errorf("unknown metrics format %q (use table or prom)", statusFormat)
		}
		status := daemon.ReadStatus(daemon.NewPIDFile(p.PIDFile), daemon.NewStateFile(p.State))

		switch {
		case !status.Running:
			fmt.Fprintln(out, "keebie is not running")
		case status.Paused:
			fmt.Fprintf(out, "keebie is paused (pid %d, up %s)\n", status.PID, status.Uptime)
		default:
			fmt.Fprintf(out, "keebie is running (pid %d, up %s)\n", status.PID, status.Uptime)
		}
		if status.Running {
			devices := "none"
			if len(status.Devices) > 0 {
				devices = strings.Join(status.Devices, ", ")
			}
			fmt.Fprintf(out, "devices: %s\n", devices)
		}

		fmt.Fprintf(out, "config:  %s\n", p.ConfigDir)
		fmt.Fprintf(out, "state:   %s\n", p.StateDir)

		if statusMetrics && status.Running {
			if err := printMetrics(out, p, status, statusFormat); err != nil {
				return err
			}
		}

		reports, err := logging.NewCrashHandler(p.Crashes, "daemon", nil).Reports()
		if err == nil && len(reports) > 0 {
			last := reports[len(reports)-1]
			fmt.Fprintf(out, "crashes: %d (last %s: %s)\n", len(reports), last.Timestamp.Format("2006-01-02 15:04:05"), last.PanicValue)
		}
		return nil
	},
}

// printMetrics shows the running daemon's metrics, either as a table of
// the state file snapshot or as the Prometheus text file it publishes.
func printMetrics(out io.Writer, p config.Paths, status daemon.Status, format string) error {
	if format == "prom" {
		data, err := os.ReadFile(p.Metrics)
		if err != nil {
			return fmt.Errorf("read metrics: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(status.Metrics)) {
		fmt.Fprintf(w, "  %s\t%g\n", name, status.Metrics[name])
	}
	return w.Flush()
}

func notRunning(err error) error {
	if errors.Is(err, daemon.ErrNotRunning) {
		return errNotRunning
	}
	return err
}
