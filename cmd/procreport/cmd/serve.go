package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/procreport/internal/api"
	"github.com/hugo-lorenzo-mato/procreport/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event loop with reporting and the HTTP API",
	Long: `Run the event loop with the report subsystem attached.

Reports are written on uncaught panics, fatal errors and the configured
signal. The HTTP API triggers reports, lists the catalog and changes
report options at runtime. The config file is watched and report options
are re-applied when it changes.

Examples:
  # Start with defaults (127.0.0.1:7190)
  procreport serve

  # Listen on another address and write reports to /var/reports
  PROCREPORT_DIRECTORY=/var/reports procreport serve --addr 0.0.0.0:7190

  # Request a report from another shell
  kill -USR2 <pid>`,
	RunE: runServe,
}

var (
	serveAddr    string
	serveNoWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"HTTP listen address (default from server.addr)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false,
		"do not reload the config file on change")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	cfg := appConfig
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.loop.Run(gctx); err != nil {
			return fmt.Errorf("running event loop: %w", err)
		}
		return nil
	})

	if a.monitor != nil {
		a.monitor.Start(gctx)
	}

	if path := appLoader.ConfigFile(); path != "" && !serveNoWatch {
		watcher, err := config.NewWatcher(path, logger.WithComponent("config").Logger, a.reconfigure)
		if err != nil {
			logger.Warn("config file will not be watched", "file", path, "error", err)
		} else {
			h := a.loop.RegisterHandle("fs_event", path)
			h.SetActive(true)
			h.Unref()
			defer h.Close()
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	serverOpts := []api.ServerOption{
		api.WithLogger(logger.WithComponent("api").Logger),
		api.WithMonitor(a.monitor),
		api.WithGatherer(a.registry),
		api.WithEventBus(a.bus),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithHTTPTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if a.store != nil {
		serverOpts = append(serverOpts, api.WithCatalog(a.store))
	}
	srv := api.NewServer(a.loop, a.ctrl, serverOpts...)

	listener := a.loop.RegisterHandle("tcp", cfg.Server.Addr)
	listener.SetActive(true)
	listener.Ref()
	defer listener.Close()
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})

	logger.Info("procreport serving",
		"pid", os.Getpid(),
		"addr", cfg.Server.Addr,
		"events", a.ctrl.Options().Events.String(),
		"signal", a.ctrl.Options().SignalName())

	runErr := g.Wait()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.close(shutdownCtx))
}
