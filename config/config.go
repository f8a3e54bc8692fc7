package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	apperrors "github.com/goliatone/go-errors"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-mutation"
)

const (
	// EnvPrefix scopes environment overrides, e.g. MUTATION_STORE__DSN.
	EnvPrefix = "MUTATION_"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	CodeConfigInvalid = "CONFIG_INVALID"
)

// ErrConfigInvalid is returned by Validate.
var ErrConfigInvalid = apperrors.New("invalid configuration", apperrors.CategoryValidation).
	WithTextCode(CodeConfigInvalid)

type Config struct {
	AutoHistory   bool          `koanf:"auto_history" yaml:"auto_history"`
	AnonymousName string        `koanf:"anonymous_name" yaml:"anonymous_name"`
	PageSize      int           `koanf:"page_size" yaml:"page_size"`
	Store         StoreConfig   `koanf:"store" yaml:"store"`
	Log           LogConfig     `koanf:"log" yaml:"log"`
	History       HistoryConfig `koanf:"history" yaml:"history"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" yaml:"driver"` // memory, sqlite
	DSN    string `koanf:"dsn" yaml:"dsn"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // console, json
}

// HistoryConfig drives the scheduled history cleanup. A zero Retention
// disables pruning. Timezone is an IANA name the schedule is read in; empty
// means the local zone.
type HistoryConfig struct {
	Retention time.Duration `koanf:"retention" yaml:"retention"`
	Schedule  string        `koanf:"schedule" yaml:"schedule"`
	Timezone  string        `koanf:"timezone" yaml:"timezone"`
}

// Location resolves Timezone.
func (h HistoryConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(h.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(strings.TrimSpace(h.Timezone))
}

// Defaults returns the configuration used when nothing is provided.
func Defaults() Config {
	return Config{
		AutoHistory:   true,
		AnonymousName: mutation.AnonymousName,
		PageSize:      20,
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Schedule: "@daily",
		},
	}
}

// Load reads path (optional, YAML) and overlays MUTATION_ environment
// variables on top of Defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Parse decodes raw YAML on top of Defaults.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var problems []string

	if c.PageSize < 1 {
		problems = append(problems, "page_size must be at least 1")
	}
	if strings.TrimSpace(c.AnonymousName) == "" {
		problems = append(problems, "anonymous_name is required")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Store.DSN) == "" {
			problems = append(problems, "store.dsn is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}

	if c.History.Retention < 0 {
		problems = append(problems, "history.retention cannot be negative")
	}
	if c.History.Retention > 0 && strings.TrimSpace(c.History.Schedule) == "" {
		problems = append(problems, "history.schedule is required when retention is set")
	}
	if _, err := c.History.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("history.timezone %q is unknown", c.History.Timezone))
	}

	if len(problems) == 0 {
		return nil
	}
	return mutation.NewError(ErrConfigInvalid, strings.Join(problems, "; "), nil, map[string]any{
		"problems": problems,
	})
}
