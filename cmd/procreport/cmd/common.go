package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hugo-lorenzo-mato/procreport/internal/catalog"
	"github.com/hugo-lorenzo-mato/procreport/internal/config"
	"github.com/hugo-lorenzo-mato/procreport/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
	"github.com/hugo-lorenzo-mato/procreport/internal/events"
	"github.com/hugo-lorenzo-mato/procreport/internal/logging"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// app is the assembled runtime shared by serve and dump.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	loop     *engine.Loop
	ctrl     *report.Controller
	monitor  *diagnostics.ResourceMonitor
	store    *catalog.Store
	bus      *events.Bus
	registry *prometheus.Registry
}

// newApp builds the loop, the report controller and its collaborators from
// cfg. The loop is not started.
func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	mode, err := engine.ParseUnhandledMode(cfg.Engine.Unhandled)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		bus:      events.New(cfg.Server.EventBuffer),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.loop = engine.NewLoop(
		engine.WithLogger(logger.WithComponent("engine").Logger),
		engine.WithUnhandledMode(mode),
		engine.WithQueueSize(cfg.Engine.QueueSize),
	)

	if cfg.Monitor.Enabled {
		a.monitor = diagnostics.NewResourceMonitor(diagnostics.MonitorConfig{
			Interval:           cfg.Monitor.Interval,
			FDThresholdPercent: cfg.Monitor.FDThresholdPercent,
			GoroutineThreshold: cfg.Monitor.GoroutineThreshold,
			MemoryThresholdMB:  cfg.Monitor.MemoryThresholdMB,
			HeapLimitMB:        cfg.Monitor.HeapLimitMB,
			HistorySize:        cfg.Monitor.HistorySize,
		}, logger.WithComponent("monitor").Logger)
		a.monitor.OnHeapLimit(a.loop.Fatal)
	}

	ctrlOpts := []report.Option{
		report.WithLogger(logger.WithComponent("report").Logger),
		report.WithListener(func(rec report.Record) { a.bus.Publish(events.ReportWritten(rec)) }),
	}
	metrics, err := report.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("registering report metrics: %w", err)
	}
	ctrlOpts = append(ctrlOpts, report.WithMetrics(metrics))

	if cfg.Catalog.Enabled {
		a.store, err = catalog.Open(cfg.Catalog.Path,
			catalog.WithMaxFiles(cfg.Catalog.MaxFiles),
			catalog.WithLogger(logger.WithComponent("catalog").Logger))
		if err != nil {
			return nil, fmt.Errorf("opening report catalog: %w", err)
		}
		ctrlOpts = append(ctrlOpts, report.WithCatalog(a.store))
	}

	renderer := diagnostics.NewTextRenderer(
		diagnostics.WithVersion(appVersion),
		diagnostics.WithHostCollector(diagnostics.NewHostCollector("")),
		diagnostics.WithMonitor(a.monitor),
		diagnostics.WithSanitizer(logger.Sanitizer()),
	)
	a.ctrl = report.New(renderer, ctrlOpts...)

	if err := a.ctrl.Configure(cfg.Report.Settings()); err != nil {
		// Rejected tokens leave the defaults in place.
		logger.Warn("some report options were not applied", "error", err)
	}
	a.ctrl.Attach(a.loop)
	return a, nil
}

// reconfigure applies report options from a reloaded config file.
func (a *app) reconfigure(cfg *config.Config) {
	if err := a.ctrl.Configure(cfg.Report.Settings()); err != nil {
		a.logger.Warn("report options not fully applied", "error", err)
		return
	}
	a.logger.Info("report options updated", "events", a.ctrl.Options().Events.String())
	a.bus.Publish(events.ConfigReloaded(appLoader.ConfigFile()))
}

// dump writes one report from the loop goroutine.
func (a *app) dump(ctx context.Context, filename string) (report.Result, error) {
	var res report.Result
	err := a.loop.Call(ctx, func() error {
		var err error
		res, err = a.ctrl.Dump(filename)
		return err
	})
	return res, err
}

// close stops everything newApp started, in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if err := a.ctrl.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping report controller: %w", err))
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	a.loop.Stop()
	a.bus.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing report catalog: %w", err))
		}
	}
	return errors.Join(errs...)
}
