package config

import (
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

// LogConfig configures the diagnostic stream.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ReportConfig holds the initial report trigger options. Values use the same
// syntax as the runtime setters and are validated by the report package.
type ReportConfig struct {
	Events    string `mapstructure:"events" yaml:"events"`
	CoreDump  string `mapstructure:"coredump" yaml:"coredump"`
	Signal    string `mapstructure:"signal" yaml:"signal"`
	Filename  string `mapstructure:"filename" yaml:"filename,omitempty"`
	Directory string `mapstructure:"directory" yaml:"directory,omitempty"`
	Verbose   string `mapstructure:"verbose" yaml:"verbose"`
}

// Settings converts the section for report.Controller.Configure.
func (c ReportConfig) Settings() report.Settings {
	return report.Settings{
		Events:    c.Events,
		CoreDump:  switchValue(c.CoreDump),
		Signal:    c.Signal,
		Filename:  c.Filename,
		Directory: c.Directory,
		Verbose:   switchValue(c.Verbose),
	}
}

// switchValue maps YAML booleans, which weak decoding turns into "1" and "0",
// back to switch syntax.
func switchValue(s string) string {
	switch strings.TrimSpace(s) {
	case "1":
		return "true"
	case "0":
		return "false"
	}
	return s
}

// EngineConfig configures the event loop.
type EngineConfig struct {
	// Unhandled is what happens to an uncaught panic the report hook does not
	// abort on: exit or continue.
	Unhandled string `mapstructure:"unhandled" yaml:"unhandled"`
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	EventBuffer     int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// CatalogConfig configures the report catalog.
type CatalogConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Path     string `mapstructure:"path" yaml:"path"`
	MaxFiles int    `mapstructure:"max_files" yaml:"max_files"`
}

// MonitorConfig configures resource sampling.
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval           time.Duration `mapstructure:"interval" yaml:"interval"`
	FDThresholdPercent int           `mapstructure:"fd_threshold_percent" yaml:"fd_threshold_percent"`
	GoroutineThreshold int           `mapstructure:"goroutine_threshold" yaml:"goroutine_threshold"`
	MemoryThresholdMB  int           `mapstructure:"memory_threshold_mb" yaml:"memory_threshold_mb"`
	HeapLimitMB        int           `mapstructure:"heap_limit_mb" yaml:"heap_limit_mb"`
	HistorySize        int           `mapstructure:"history_size" yaml:"history_size"`
}
