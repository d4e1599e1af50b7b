// Command umlautd is the system-wide compose-key daemon (spec §1, §6).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/umlautd/umlautd/internal/config"
	"github.com/umlautd/umlautd/internal/device"
	"github.com/umlautd/umlautd/internal/loop"
	"github.com/umlautd/umlautd/internal/logging"
	"github.com/umlautd/umlautd/internal/synth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.Default().Error("FATAL: " + err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string
	var logLevel string
	var testMarker string

	cmd := &cobra.Command{
		Use:           "umlautd",
		Short:         "System-wide compose-key daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				configDir:  configDir,
				logLevel:   logLevel,
				testMarker: testMarker,
			})
		},
	}

	defaultConfigDir, _ := xdg.ConfigFile("umlautd")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir, "directory holding settings.config.json and sequence files")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override settings.log_level (DEBUG, INFO, WARN, ERROR)")
	cmd.PersistentFlags().StringVar(&testMarker, "test-marker", "", "path to the test-mode marker file; while it exists, every physical key event is forwarded unchanged")

	viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))

	return cmd
}

type runOptions struct {
	configDir  string
	logLevel   string
	testMarker string
}

// run wires config load, device discovery, the output synthesizer, the
// compose machine, and the event loop together, and blocks until shutdown
// (spec §4.7, §6 "Startup sequence").
func run(ctx context.Context, opts runOptions) error {
	log := logging.Default()

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return fmt.Errorf("config fatal: %w", err)
	}

	if opts.logLevel != "" {
		logging.Configure(opts.logLevel)
	} else {
		logging.Configure(cfg.LogLevel)
	}

	log.Info("configuration loaded", "dir", opts.configDir, "sequences", cfg.SequenceTable.Len(), "triggers", len(cfg.TriggerKeys))

	mgr, err := device.Discover()
	if err != nil {
		return fmt.Errorf("device fatal: %w", err)
	}

	log.Info("keyboards grabbed", "count", len(mgr.Devices()))

	typer := synth.NewXdotoolTyper()
	emitter := synth.New(mgr.Virtual, typer)

	l := loop.New(mgr, cfg, emitter, opts.configDir)
	defer l.Close()
	if opts.testMarker != "" {
		markerPath := opts.testMarker
		l.TestModeActive = func() bool {
			_, err := os.Stat(markerPath)
			return err == nil
		}
		log.Info("test-mode marker configured", "path", markerPath)
	}

	// Shutdown and reload are driven entirely by internal/loop's own
	// SIGINT/SIGTERM/SIGHUP watcher (spec §4.7); ctx cancellation is only
	// used by tests that want a deterministic stop.
	if err := l.Run(ctx); err != nil {
		return err
	}

	log.Info("shutting down")
	return nil
}
