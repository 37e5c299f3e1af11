// keebie turns dedicated input devices into macro keyboards.
//
//	keebie run             Run the daemon in the foreground
//	keebie pause           Release the devices of a running daemon
//	keebie resume          Let a paused daemon take its devices back
//	keebie stop            Stop a running daemon
//	keebie status          Show whether the daemon runs and what it holds
//	keebie layers [name]   Show layers and their bindings
//	keebie capture <dev>   Print the chord histories typed on a device
//	keebie history         Show the macros the daemon executed
//	keebie devices         List the input devices of this machine
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keebie/internal/config"
	"keebie/internal/daemon"
	"keebie/internal/logging"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "keebie",
	Short: "Macro keyboards from spare input devices",
	Long: `keebie grabs dedicated input devices and runs the commands bound to
the chords typed on them.

Device definitions live in <config>/devices, layers in <config>/layers,
scripts in <config>/scripts and settings in <config>/settings.toml.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfigDir string
	flagStateDir  string
	flagVerbose   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "Configuration directory (default $"+config.EnvConfigDir+" or ~/.config/keebie)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "State directory (default $"+config.EnvStateDir+" or ~/.local/state/keebie)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(layersCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(settingsCmd)
}

// paths returns the layout selected by the flags and environment.
func paths() config.Paths {
	configDir := flagConfigDir
	if configDir == "" {
		configDir = config.PlatformConfigDir()
	}
	stateDir := flagStateDir
	if stateDir == "" {
		stateDir = config.PlatformStateDir()
	}
	return config.PathsAt(configDir, stateDir)
}

// newLogger builds the logger described by the settings.
func newLogger(s config.Settings, p config.Paths, component string) (*logging.Logger, error) {
	cfg := logging.DefaultConfig()
	if err := cfg.Apply(s.LogLevel, s.LogFormat, s.LogOutput); err != nil {
		return nil, err
	}
	if flagVerbose {
		cfg.Level = logging.LevelDebug
	}
	cfg.FilePath = p.Log
	cfg.Component = component
	return logging.New(cfg)
}

// companionLogger logs to stderr only; companions never write the daemon's
// log file.
func companionLogger(s config.Settings, p config.Paths, component string) (*logging.Logger, error) {
	s.LogOutput = "stderr"
	if !flagVerbose {
		s.LogLevel = "warn"
	}
	return newLogger(s, p, component)
}

func newCompanion(p config.Paths, s config.Settings) *daemon.Companion {
	return daemon.NewCompanion(daemon.NewPIDFile(p.PIDFile), s.LoopDelay)
}
