package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/daemon"
	"keebie/internal/journal"
	"keebie/internal/logging"
	"keebie/internal/notify"
	"keebie/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the daemon in the foreground until SIGTERM or SIGINT.

SIGUSR1 pauses the daemon: it ungrabs and closes its devices. SIGUSR2
resumes it: settings and device definitions are reloaded and every device
is grabbed again. 'keebie pause' and 'keebie resume' send these signals.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

func runDaemon(cmd *cobra.Command) error {
	p := paths()
	if err := p.EnsureDirectories(); err != nil {
		return err
	}

	settings, warnings := config.LoadSettings(p.Settings)
	log, err := newLogger(settings, p, "daemon")
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	for _, w := range warnings {
		log.Warn("settings", "field", w.Field, "problem", w.Message)
	}

	d := daemon.New(daemon.Options{
		Paths:    p,
		Open:     openDevice,
		Executor: runner.New("", log.WithComponent("runner").Logger),
		Logger:   log.Logger,
		Crash:    logging.NewCrashHandler(p.Crashes, "daemon", log.Logger),
		OpenJournal: func() (*journal.Journal, error) {
			return journal.Open(p.Journal)
		},
		OpenNotifier: func() (notify.Notifier, error) {
			n, err := notify.NewDesktop("keebie")
			if err != nil {
				return nil, err
			}
			return n, nil
		},
		WatchPaths: []string{p.Devices, inputDir},
	})

	err = d.Run(cmd.Context())
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return fmt.Errorf("%w; use 'keebie stop' first", err)
	}
	return err
}
