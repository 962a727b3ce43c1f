package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"roverscope/internal/admin"
	"roverscope/internal/config"
	"roverscope/internal/dashboard"
	"roverscope/internal/link"
	"roverscope/internal/logging"
	"roverscope/internal/store"
	"roverscope/internal/telemetry"
)

var (
	configPath string
	schemaPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "roverscope",
	Short:        "Rover situational-awareness toolkit",
	Long:         "roverscope watches a rover's telemetry channel, scores hazards, records the feed and serves it over HTTP.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "schemas/roverscope.cue", "Path to CUE schema file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(missionCmd)
	rootCmd.AddCommand(grafanaCmd)
}

// loadConfig reads the configuration and applies process-wide settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if cfg.Sensor.Width > 0 && cfg.Sensor.Height > 0 {
		telemetry.DefaultResolution = telemetry.Resolution{W: cfg.Sensor.Width, H: cfg.Sensor.Height}
	}
	return cfg, nil
}

// newLogger builds the configured logger and installs it as the default.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

func linkConfig(cfg *config.Config) link.Config {
	lc := link.DefaultConfig()
	lc.ReconnectAttempts = cfg.Link.ReconnectAttempts
	lc.ReconnectDelay = cfg.Link.ReconnectDelay
	return lc
}

func storeOptions(cfg *config.Config, log *slog.Logger) []store.Option {
	return []store.Option{
		store.WithCapacity(cfg.History.Positions, cfg.History.Depths),
		store.WithLogger(log),
	}
}

func adminConfig(cfg *config.Config) admin.Config {
	return admin.Config{
		WorldW:      cfg.World.WidthM,
		WorldH:      cfg.World.HeightM,
		SurfaceW:    cfg.Map.SurfaceW,
		SurfaceH:    cfg.Map.SurfaceH,
		StaleAfter:  cfg.History.StaleAfter,
		DepthWindow: cfg.History.DepthWindow,
	}
}

func dashboardOptions(cfg *config.Config, commander func(telemetry.Command) error) dashboard.Options {
	return dashboard.Options{
		WorldW:     cfg.World.WidthM,
		WorldH:     cfg.World.HeightM,
		StaleAfter: cfg.History.StaleAfter,
		Commander:  commander,
	}
}
