package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "PROCREPORT"

// reportEnv maps report options to their unnested environment names, so
// PROCREPORT_EVENTS rather than PROCREPORT_REPORT_EVENTS configures events.
var reportEnv = map[string]string{
	"report.events":    "EVENTS",
	"report.coredump":  "COREDUMP",
	"report.signal":    "SIGNAL",
	"report.filename":  "FILENAME",
	"report.directory": "DIRECTORY",
	"report.verbose":   "VERBOSE",
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance, so
// CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (PROCREPORT_*)
// 3. Project config (.procreport.yaml in current directory)
// 4. User config (~/.config/procreport/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for key, name := range reportEnv {
		if err := l.v.BindEnv(key, l.envPrefix+"_"+name); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".procreport")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "procreport"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("report.events", "exception+fatalerror+signal+apicall")
	l.v.SetDefault("report.coredump", "yes")
	l.v.SetDefault("report.signal", "SIGUSR2")
	l.v.SetDefault("report.filename", "")
	l.v.SetDefault("report.directory", "")
	l.v.SetDefault("report.verbose", "no")

	l.v.SetDefault("engine.unhandled", "exit")
	l.v.SetDefault("engine.queue_size", 256)

	l.v.SetDefault("server.addr", "127.0.0.1:7190")
	l.v.SetDefault("server.cors_origins", []string{})
	l.v.SetDefault("server.read_timeout", "15s")
	l.v.SetDefault("server.write_timeout", "60s")
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.event_buffer", 64)

	l.v.SetDefault("catalog.enabled", true)
	l.v.SetDefault("catalog.path", filepath.Join(".procreport", "catalog.db"))
	l.v.SetDefault("catalog.max_files", 50)

	l.v.SetDefault("monitor.enabled", true)
	l.v.SetDefault("monitor.interval", "30s")
	l.v.SetDefault("monitor.fd_threshold_percent", 80)
	l.v.SetDefault("monitor.goroutine_threshold", 10000)
	l.v.SetDefault("monitor.memory_threshold_mb", 4096)
	l.v.SetDefault("monitor.heap_limit_mb", 0)
	l.v.SetDefault("monitor.history_size", 120)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// AllSettings returns all settings as a map.
func (l *Loader) AllSettings() map[string]any {
	return l.v.AllSettings()
}

// Load reads configuration from path, or from the default search paths when
// path is empty, and validates it.
func Load(path string) (*Config, error) {
	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
