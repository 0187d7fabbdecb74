// Package config loads executor, store and logging settings from YAML.
//
// Example file:
//
//	executor:
//	  safety_ceiling: 40
//	  max_concurrent: 4
//	  node_timeout: 2m
//	store:
//	  driver: sqlite        # memory | file | sqlite | mysql
//	  dsn: ./threads.db     # path, directory/URL or MySQL DSN; ${VAR} is expanded
//	log:
//	  level: info           # debug | info | warn | error
//	  format: text          # text | json
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/wavegraph/graph"
	"github.com/dshills/wavegraph/graph/emit"
	"github.com/dshills/wavegraph/graph/store"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is the root configuration document.
type Config struct {
	Executor Executor `yaml:"executor"`
	Store    Store    `yaml:"store"`
	Log      Log      `yaml:"log"`
}

// Executor holds graph.Executor settings. Zero values keep library defaults.
type Executor struct {
	SafetyCeiling int           `yaml:"safety_ceiling"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	NodeTimeout   time.Duration `yaml:"node_timeout"`
}

// Store selects and locates the checkpoint backend.
type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Log configures the slog logger used for execution events.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns an in-memory, text-logging configuration.
func Default() Config {
	return Config{
		Executor: Executor{SafetyCeiling: graph.DefaultSafetyCeiling},
		Store:    Store{Driver: DriverMemory},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// FromFile loads a YAML file over Default.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return FromYAML(data)
}

// FromYAML parses YAML over Default and validates the result.
func FromYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.Store.DSN = os.ExpandEnv(cfg.Store.DSN)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Executor.SafetyCeiling < 0 {
		return fmt.Errorf("executor.safety_ceiling must be >= 0, got %d", c.Executor.SafetyCeiling)
	}
	if c.Executor.MaxConcurrent < 0 {
		return fmt.Errorf("executor.max_concurrent must be >= 0, got %d", c.Executor.MaxConcurrent)
	}
	if c.Executor.NodeTimeout < 0 {
		return fmt.Errorf("executor.node_timeout must be >= 0, got %v", c.Executor.NodeTimeout)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile, DriverSQLite, DriverMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Options converts the executor section into graph options. Events are
// logged through logger when it is non-nil.
func (c Config) Options(logger *slog.Logger) []graph.Option {
	var opts []graph.Option
	if c.Executor.SafetyCeiling > 0 {
		opts = append(opts, graph.WithSafetyCeiling(c.Executor.SafetyCeiling))
	}
	if c.Executor.MaxConcurrent > 0 {
		opts = append(opts, graph.WithMaxConcurrent(c.Executor.MaxConcurrent))
	}
	if c.Executor.NodeTimeout > 0 {
		opts = append(opts, graph.WithNodeTimeout(c.Executor.NodeTimeout))
	}
	if logger != nil {
		opts = append(opts, graph.WithEmitter(emit.NewSlogEmitter(logger)))
	}
	return opts
}

// OpenStore opens the configured backend. The returned close function
// releases it and is never nil.
func (c Config) OpenStore() (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Store.Driver {
	case DriverMemory:
		return store.NewMemStore(), noop, nil
	case DriverFile:
		st, err := store.NewFileStore(c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return st, noop, nil
	case DriverSQLite:
		st, err := store.NewSQLiteStore(c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	case DriverMySQL:
		st, err := store.NewMySQLStore(c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql store: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
}

// Logger builds a slog logger writing to w (os.Stderr if nil).
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log.level %q", s)
	}
}
