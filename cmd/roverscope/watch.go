package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"roverscope/internal/admin"
	"roverscope/internal/config"
	"roverscope/internal/dashboard"
	"roverscope/internal/link"
	"roverscope/internal/logging"
	"roverscope/internal/sink"
	"roverscope/internal/store"
	"roverscope/internal/telemetry"
)

var (
	watchPrintOnly bool
	watchEndpoint  string
	watchCapture   string
	watchLogFile   string
	watchAdminAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect to a rover and show its telemetry",
	Long: "watch keeps a channel open to the rover server, feeds the store and shows the dashboard. " +
		"Without a terminal, or with --print-only, pose and hazard rows are printed as JSON instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if watchEndpoint != "" {
			cfg.Link.Endpoint = watchEndpoint
		}
		if watchLogFile != "" {
			cfg.Sink.LogFile = watchLogFile
		}
		if cmd.Flags().Changed("admin") {
			cfg.Admin.Addr = watchAdminAddr
		}
		return runWatch(cfg, !watchPrintOnly && term.IsTerminal(int(os.Stdout.Fd())), cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchPrintOnly, "print-only", false, "Print pose/hazard rows to STDOUT instead of showing the dashboard")
	watchCmd.Flags().StringVar(&watchEndpoint, "endpoint", "", "Rover channel endpoint (ws:// or wss://)")
	watchCmd.Flags().StringVar(&watchCapture, "capture", "", "Record inbound envelopes to this JSONL file for replay")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Path to export pose/hazard rows (JSONL)")
	watchCmd.Flags().StringVar(&watchAdminAddr, "admin", "", "HTTP surface address; empty disables it")
}

func runWatch(cfg *config.Config, tui bool, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		dash     *dashboard.Dashboard
		mgr      *link.Manager
		mgrReady = make(chan struct{})
		logOut   io.Writer = os.Stderr
		rowsOut  io.Writer = out
	)
	if tui {
		dash = dashboard.New(dashboardOptions(cfg, func(c telemetry.Command) error {
			<-mgrReady
			return mgr.Send(ctx, c)
		}))
		defer dash.Close()
		logOut = logging.NewLineWriter(dash.Log)
		rowsOut = nil
	}
	log, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}
	ctx = logging.NewContext(ctx, log)

	opts := []link.Option{link.WithLogger(log)}
	if watchCapture != "" {
		f, err := os.Create(watchCapture)
		if err != nil {
			return err
		}
		defer f.Close()
		opts = append(opts, link.WithCapture(f))
		log.Info("capturing envelopes", "path", watchCapture)
	}
	mgr = link.New(linkConfig(cfg), opts...)
	close(mgrReady)
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("capture incomplete", "error", err)
		}
	}()

	st := store.New(storeOptions(cfg, log)...)
	detach := st.Attach(ctx, mgr)
	defer detach()

	stopRecorder, err := startRecorder(ctx, cfg, st, watchPrintOnly, rowsOut, log)
	if err != nil {
		return err
	}
	defer stopRecorder()
	if dash != nil {
		defer st.Observe(dash.Observe)()
	}
	if cfg.Admin.Addr != "" {
		startAdmin(ctx, st, mgr, cfg, log)
		if dash != nil {
			dash.SetAdminStatus(cfg.Admin.Addr)
		}
	}

	if err := mgr.Connect(ctx, cfg.Link.Endpoint); err != nil {
		return err
	}

	var quit <-chan struct{}
	if dash != nil {
		quit = dash.Done()
	}
	select {
	case <-ctx.Done():
	case <-quit:
	}
	log.Info("roverscope stopped")
	return nil
}

// startRecorder wires the configured writers to the store. Nothing records
// when no writer is configured. stop waits for pending rows to be written.
func startRecorder(ctx context.Context, cfg *config.Config, st *store.Store, printOnly bool, out io.Writer, log *slog.Logger) (stop func(), err error) {
	pw, hw, cleanup, err := newWriters(cfg.Sink, printOnly, out)
	if err != nil {
		return nil, err
	}
	if pw == nil {
		cleanup()
		return func() {}, nil
	}
	rec := sink.NewRecorder(pw, hw, sink.WithRecorderLogger(log))
	unobserve := st.Observe(rec.Observe)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()
	log.Info("recording", "session", rec.Session())
	return func() {
		unobserve()
		cancel()
		<-done
		cleanup()
		if n := rec.Dropped(); n > 0 {
			log.Warn("recorder dropped views", "count", n)
		}
	}, nil
}

func startAdmin(ctx context.Context, views admin.ViewSource, ctl admin.Controller, cfg *config.Config, log *slog.Logger) {
	srv := admin.NewServer(views, ctl, adminConfig(cfg), log)
	go func() {
		if err := srv.Start(ctx, cfg.Admin.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", "error", err)
		}
	}()
}
