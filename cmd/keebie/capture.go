package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/docstore"
	"keebie/internal/layer"
	"keebie/internal/macro"
)

var captureCount int

var captureCmd = &cobra.Command{
	Use:   "capture <device>",
	Short: "Print the chord histories typed on a device",
	Long: `Pause the daemon, grab the named device and print each chord history
typed on it, ready to be used as a binding. The daemon is resumed on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(cmd, args[0])
	},
}

func init() {
	captureCmd.Flags().IntVarP(&captureCount, "count", "n", 0, "Exit after this many histories (0 runs until interrupted)")
}

func runCapture(cmd *cobra.Command, name string) error {
	p := paths()
	s, _ := config.LoadSettings(p.Settings)
	configs, _ := config.LoadDevices(p.Devices)
	cfg, ok := configs[name]
	if !ok {
		return fmt.Errorf("no device %q in %s", name, p.Devices)
	}

	log, err := companionLogger(s, p, "capture")
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newCompanion(p, s).Run(func() error {
		h, err := openDevice(cfg.Event)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Event, err)
		}
		dev := macro.New(h, macro.Options{
			Name:         cfg.Name,
			InitialLayer: cfg.InitialLayer,
			Ledger:       s.LedgerConfig(),
			Layers:       layer.NewStore(docstore.New(p.Layers, docstore.FormatJSON), log.Logger),
			Logger:       log.Logger,
		})
		defer dev.Close()

		if err := dev.Grab(); err != nil {
			return err
		}
		defer dev.Ungrab()
		dev.Flush()

		fmt.Fprintf(cmd.ErrOrStderr(), "capturing %s, interrupt to stop\n", cfg.Name)
		return capture(ctx, dev, s.LoopDelay, captureCount, func(history string) {
			fmt.Fprintln(cmd.OutOrStdout(), history)
		})
	})
}

// capture polls dev until ctx is done or count histories were seen.
func capture(ctx context.Context, dev *macro.Device, delay time.Duration, count int, emit func(string)) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		flushed, err := dev.Read(false)
		if err != nil {
			return err
		}
		if !flushed {
			continue
		}
		for history := dev.Ledger().PopHistory(); history != ""; history = dev.Ledger().PopHistory() {
			emit(history)
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}
