package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roverscope/internal/logging"
	"roverscope/internal/sim"
)

var (
	simAddr   string
	simTick   time.Duration
	simLegacy bool
	simSeed   int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic rover server",
	Long:  "simulate serves a simulated rover's telemetry channel on /ws and its mission API under /api, for trying watch without hardware.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}

		tickInterval := simTick
		if envTick := os.Getenv("TICK_INTERVAL"); envTick != "" {
			d, err := time.ParseDuration(envTick)
			if err != nil {
				return err
			}
			tickInterval = d
		}

		opts := []sim.Option{}
		if simSeed != 0 {
			opts = append(opts, sim.WithRand(rand.New(rand.NewSource(simSeed))))
		}
		if simLegacy {
			opts = append(opts, sim.WithLegacyEvents())
		}
		simulator := sim.NewSimulator(cfg.World.WidthM, cfg.World.HeightM, tickInterval, opts...)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		go simulator.Run(ctx)

		srv := sim.NewServer(simulator, log)
		if err := srv.Start(ctx, simAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Info("rover simulation stopped")
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simAddr, "addr", ":8485", "Listen address")
	simulateCmd.Flags().DurationVar(&simTick, "tick", 100*time.Millisecond, "Telemetry tick interval (e.g. 100ms, 1s)")
	simulateCmd.Flags().BoolVar(&simLegacy, "legacy", false, "Name telemetry frames telemetry_update")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Seed for the motion model (0 picks one)")
}
