package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hugo-lorenzo-mato/procreport/internal/engine"
	"github.com/hugo-lorenzo-mato/procreport/internal/logging"
	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration. Report options are only warned about:
// the report controller logs a bad token and keeps its previous value, so a
// typo there must not keep the process from starting.
type Validator struct {
	errors   ValidationErrors
	warnings ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateReport(&cfg.Report)
	v.validateEngine(&cfg.Engine)
	v.validateServer(&cfg.Server)
	v.validateCatalog(&cfg.Catalog)
	v.validateMonitor(&cfg.Monitor)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// Warnings returns problems that do not fail validation.
func (v *Validator) Warnings() ValidationErrors {
	return v.warnings
}

func (v *Validator) addWarning(field string, value any, msg string) {
	v.warnings = append(v.warnings, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) addError(field string, value any, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !logging.ValidLevel(cfg.Level) {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

// validateReport runs the report option parsers and records what they reject
// as warnings.
func (v *Validator) validateReport(cfg *ReportConfig) {
	if _, err := report.ParseEvents(cfg.Events); err != nil {
		v.addWarning("report.events", cfg.Events, err.Error())
	}
	if _, err := report.ParseSwitch(switchValue(cfg.CoreDump)); err != nil {
		v.addWarning("report.coredump", cfg.CoreDump, err.Error())
	}
	if _, err := report.ParseSignal(cfg.Signal); err != nil && !errors.Is(err, report.ErrSignalUnsupported) {
		v.addWarning("report.signal", cfg.Signal, err.Error())
	}
	if len(cfg.Filename) > report.MaxFilenameLen {
		v.addWarning("report.filename", cfg.Filename, fmt.Sprintf("must be at most %d characters", report.MaxFilenameLen))
	}
	if len(cfg.Directory) > report.MaxDirectoryLen {
		v.addWarning("report.directory", cfg.Directory, fmt.Sprintf("must be at most %d characters", report.MaxDirectoryLen))
	}
	if _, err := report.ParseSwitch(switchValue(cfg.Verbose)); err != nil {
		v.addWarning("report.verbose", cfg.Verbose, err.Error())
	}
}

func (v *Validator) validateEngine(cfg *EngineConfig) {
	if _, err := engine.ParseUnhandledMode(cfg.Unhandled); err != nil {
		v.addError("engine.unhandled", cfg.Unhandled, "must be one of: exit, continue")
	}
	if cfg.QueueSize < 1 {
		v.addError("engine.queue_size", cfg.QueueSize, "must be positive")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.addError("server.addr", cfg.Addr, "must be host:port")
	}
	if cfg.ReadTimeout < 0 {
		v.addError("server.read_timeout", cfg.ReadTimeout, "must not be negative")
	}
	if cfg.WriteTimeout < 0 {
		v.addError("server.write_timeout", cfg.WriteTimeout, "must not be negative")
	}
	if cfg.ShutdownTimeout <= 0 {
		v.addError("server.shutdown_timeout", cfg.ShutdownTimeout, "must be positive")
	}
	if cfg.EventBuffer < 0 {
		v.addError("server.event_buffer", cfg.EventBuffer, "must not be negative")
	}
}

func (v *Validator) validateCatalog(cfg *CatalogConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Path == "" {
		v.addError("catalog.path", cfg.Path, "required when the catalog is enabled")
	}
	if cfg.MaxFiles < 0 {
		v.addError("catalog.max_files", cfg.MaxFiles, "must not be negative")
	}
}

func (v *Validator) validateMonitor(cfg *MonitorConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Interval <= 0 {
		v.addError("monitor.interval", cfg.Interval, "must be positive")
	}
	if cfg.FDThresholdPercent < 0 || cfg.FDThresholdPercent > 100 {
		v.addError("monitor.fd_threshold_percent", cfg.FDThresholdPercent, "must be between 0 and 100")
	}
	if cfg.GoroutineThreshold < 0 {
		v.addError("monitor.goroutine_threshold", cfg.GoroutineThreshold, "must not be negative")
	}
	if cfg.MemoryThresholdMB < 0 {
		v.addError("monitor.memory_threshold_mb", cfg.MemoryThresholdMB, "must not be negative")
	}
	if cfg.HeapLimitMB < 0 {
		v.addError("monitor.heap_limit_mb", cfg.HeapLimitMB, "must not be negative")
	}
	if cfg.HistorySize < 0 {
		v.addError("monitor.history_size", cfg.HistorySize, "must not be negative")
	}
}

// ValidateConfig validates cfg.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// ReportWarnings returns the report options in cfg that the report
// controller will reject and leave at their previous value.
func ReportWarnings(cfg *Config) ValidationErrors {
	v := NewValidator()
	v.validateReport(&cfg.Report)
	return v.warnings
}
