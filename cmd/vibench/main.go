// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/app"
	"github.com/relabs-tech/vibration_bench/internal/config"
	"github.com/relabs-tech/vibration_bench/internal/logging"
)

const defaultConfig = "vibench_config.txt"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vibench",
	Short: "multi-sensor vibration bench: acquisition, live quadrature detection and amplitude sweeps",
	Long: `vibench streams synchronized accelerometer frames from a device over a serial
link, computes the quadrature amplitude of the stimulus frequency on the host
and records measurements and amplitude sweeps as CSV files.

Configuration is read from a KEY=VALUE file (--config, default ` + defaultConfig + `).
Every key can be overridden with a VIBENCH_ prefixed environment variable.`,
	SilenceUsage: true,
}

// run loads the configuration and logger, then runs fn until SIGINT/SIGTERM.
func run(name string, fn func(ctx context.Context, cfg *config.Config, log *zap.Logger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if !cmd.Flags().Changed("config") {
			if _, err := os.Stat(path); err != nil {
				path = ""
			}
		}
		if err := config.InitGlobal(path); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg := config.Get()

		log := logging.InitLogger(cfg).Named(name)
		defer log.Sync()
		log.Info("starting", zap.String("config", path))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := fn(ctx, cfg, log); err != nil {
			log.Error("fatal", zap.Error(err))
			return err
		}
		log.Info("stopped")
		return nil
	}
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "receive the stream, show live amplitudes and record on command",
	Long: `host opens SERIAL_PORT, decodes frames into per-sensor windows and runs the
quadrature detector each time the analysis channel's window refills.

Keys (type then Enter):
  s  start streaming      e  stop streaming
  r  start recording      o  stop recording and save CSV
  c  clear recording      q  quit`,
	Example: `  vibench host --config vibench_config.txt`,
	RunE: run("host", func(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
		return app.RunHost(ctx, cfg, os.Stdin, log)
	}),
}

var deviceCmd = &cobra.Command{
	Use:     "device",
	Short:   "sample the sensors and stream frames over DEVICE_SERIAL_PORT",
	Example: `  VIBENCH_DEVICE_DRIVER=lsm6ds3 vibench device`,
	RunE:    run("device", app.RunDevice),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "step the stimulus amplitude and write one quadrature row per step",
	Long: `sweep starts the stream, applies SWEEP_START..SWEEP_STOP in SWEEP_STEP
increments through STIMULUS_KIND (none, mqtt or dac), waits one analysis
window plus SWEEP_SETTLE_MS per step and writes
DATA_DIR/BASE_NAME/BASE_NAME-qd-YYYYMMDD_HHMMSS.csv.`,
	RunE: run("sweep", app.RunSweep),
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "print amplitude and stimulus telemetry from the MQTT broker",
	RunE: run("console", func(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
		return app.RunConsole(ctx, cfg, os.Stdout, log)
	}),
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "KEY=VALUE configuration file")
	rootCmd.AddCommand(hostCmd, deviceCmd, sweepCmd, consoleCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
