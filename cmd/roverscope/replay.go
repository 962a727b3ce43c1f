package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"roverscope/internal/dashboard"
	"roverscope/internal/link"
	"roverscope/internal/logging"
	"roverscope/internal/sink"
	"roverscope/internal/store"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayLogFile   string
	replayAdminAddr string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a captured telemetry session",
	Long: "replay feeds envelopes captured by watch --capture back through a store. " +
		"The dashboard is read-only; with --print-only the recorded rows go to STDOUT or GreptimeDB.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if replayLogFile != "" {
			cfg.Sink.LogFile = replayLogFile
		}
		tui := !replayPrintOnly && term.IsTerminal(int(os.Stdout.Fd()))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var dash *dashboard.Dashboard
		var logOut, rowsOut io.Writer = os.Stderr, cmd.OutOrStdout()
		if tui {
			dash = dashboard.New(dashboardOptions(cfg, nil))
			defer dash.Close()
			logOut = logging.NewLineWriter(dash.Log)
			rowsOut = nil
		}
		log, err := newLogger(cfg, logOut)
		if err != nil {
			return err
		}
		ctx = logging.NewContext(ctx, log)

		st := store.New(storeOptions(cfg, log)...)
		if dash != nil {
			defer st.Observe(dash.Observe)()
		}

		pw, hw, cleanup, err := newWriters(cfg.Sink, replayPrintOnly, rowsOut)
		if err != nil {
			return err
		}
		defer cleanup()
		if pw != nil {
			rec := sink.NewRecorder(pw, hw, sink.WithRecorderLogger(log))
			// replay can outpace the async queue, so record inline
			defer st.Observe(func(v store.View) {
				if err := rec.Record(v); err != nil {
					log.Warn("replay: write failed", "error", err)
				}
			})()
		}

		if replayAdminAddr != "" {
			cfg.Admin.Addr = replayAdminAddr
			startAdmin(ctx, st, nil, cfg, log)
			if dash != nil {
				dash.SetAdminStatus(replayAdminAddr)
			}
		}

		go st.Run(ctx)
		st.SetConnected(true)
		log.Info("replaying", "input", replayInput, "speed", replaySpeed)
		err = link.ReplayFile(ctx, replayInput, st.Apply, replaySpeed)
		st.SetConnected(false)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("replay finished", "packets", st.View().Packets)

		if dash == nil && replayAdminAddr == "" {
			return nil
		}
		var quit <-chan struct{}
		if dash != nil {
			quit = dash.Done()
		}
		select {
		case <-ctx.Done():
		case <-quit:
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a capture written by watch --capture")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delay)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print pose/hazard rows to STDOUT instead of showing the dashboard")
	replayCmd.Flags().StringVar(&replayLogFile, "log-file", "", "Path to export pose/hazard rows (JSONL)")
	replayCmd.Flags().StringVar(&replayAdminAddr, "admin", "", "Serve the replayed view over HTTP on this address")
	replayCmd.MarkFlagRequired("input")
}

