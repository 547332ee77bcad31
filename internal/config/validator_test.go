package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Report: ReportConfig{
			Events:   "exception+signal",
			CoreDump: "yes",
			Signal:   "SIGUSR2",
			Verbose:  "no",
		},
		Engine:  EngineConfig{Unhandled: "exit", QueueSize: 16},
		Server:  ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Catalog: CatalogConfig{Enabled: true, Path: "catalog.db", MaxFiles: 5},
		Monitor: MonitorConfig{Enabled: true, Interval: time.Second, FDThresholdPercent: 80},
	}
}

func TestValidator_Valid(t *testing.T) {
	t.Parallel()
	if err := ValidateConfig(validConfig()); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestValidator_Fields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"log.level", func(c *Config) { c.Log.Level = "loud" }},
		{"log.format", func(c *Config) { c.Log.Format = "xml" }},
		{"engine.unhandled", func(c *Config) { c.Engine.Unhandled = "ignore" }},
		{"engine.queue_size", func(c *Config) { c.Engine.QueueSize = 0 }},
		{"server.addr", func(c *Config) { c.Server.Addr = "no-port" }},
		{"server.shutdown_timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"server.event_buffer", func(c *Config) { c.Server.EventBuffer = -1 }},
		{"catalog.path", func(c *Config) { c.Catalog.Path = "" }},
		{"monitor.interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"monitor.fd_threshold_percent", func(c *Config) { c.Monitor.FDThresholdPercent = 101 }},
		{"monitor.heap_limit_mb", func(c *Config) { c.Monitor.HeapLimitMB = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidateConfig() error = %v, want ValidationErrors", err)
			}
			if len(verrs) != 1 || verrs[0].Field != tt.field {
				t.Errorf("errors = %v, want one for %s", verrs, tt.field)
			}
		})
	}
}

func TestValidator_ReportOptionsOnlyWarn(t *testing.T) {
	t.Parallel()
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"report.events", func(c *Config) { c.Report.Events = "exception+crash" }},
		{"report.coredump", func(c *Config) { c.Report.CoreDump = "maybe" }},
		{"report.filename", func(c *Config) { c.Report.Filename = strings.Repeat("f", 65) }},
		{"report.directory", func(c *Config) { c.Report.Directory = strings.Repeat("d", 1025) }},
		{"report.verbose", func(c *Config) { c.Report.Verbose = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			v := NewValidator()
			if err := v.Validate(cfg); err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
			warns := v.Warnings()
			if len(warns) != 1 || warns[0].Field != tt.field {
				t.Errorf("warnings = %v, want one for %s", warns, tt.field)
			}
			if got := ReportWarnings(cfg); len(got) != 1 || got[0].Field != tt.field {
				t.Errorf("ReportWarnings() = %v", got)
			}
		})
	}
}

func TestValidator_DisabledSectionsSkipped(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Catalog = CatalogConfig{Enabled: false}
	cfg.Monitor = MonitorConfig{Enabled: false, Interval: -1}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: "x", Message: "worse"},
	}
	want := "config validation: a: bad (got: 1); config validation: b: worse (got: x)"
	if errs.Error() != want {
		t.Errorf("Error() = %q, want %q", errs.Error(), want)
	}
	if !errs.HasErrors() {
		t.Error("HasErrors() = false")
	}
}

func TestReportConfig_Settings(t *testing.T) {
	t.Parallel()
	s := ReportConfig{Events: "signal", CoreDump: "1", Signal: "SIGQUIT", Verbose: "0", Filename: "stdout"}.Settings()
	if s.CoreDump != "true" || s.Verbose != "false" {
		t.Errorf("switches = %q/%q, want true/false", s.CoreDump, s.Verbose)
	}
	if s.Events != "signal" || s.Signal != "SIGQUIT" || s.Filename != "stdout" {
		t.Errorf("Settings() = %+v", s)
	}
}
