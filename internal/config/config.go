// Package config loads the ddialog application configuration (ddialog.yaml).
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/ddialog/pkg/adapters/luis"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "ddialog.yaml"

// Config is the root of ddialog.yaml.
type Config struct {
	// Dialogs is the definitions directory (the one holding Steps/).
	// Relative paths resolve against the config file's directory.
	Dialogs       string `yaml:"dialogs" default:"." validate:"required"`
	DefaultDialog string `yaml:"default_dialog"`
	RunMode       string `yaml:"run_mode" default:"none" validate:"oneof=none dev training"`
	Locale        string `yaml:"locale" default:"en-US" validate:"bcp47_language_tag"`
	Welcome       string `yaml:"welcome"`
	Completion    string `yaml:"completion" default:"restart" validate:"oneof=restart end"`
	Confirmation  string `yaml:"confirmation_prompt"`

	Store       StoreConfig        `yaml:"store"`
	Dispatch    string             `yaml:"dispatch"`
	Recognizers []RecognizerConfig `yaml:"recognizers" validate:"dive"`
	HTTP        HTTPConfig         `yaml:"http"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Log         LogConfig          `yaml:"log"`
}

// StoreConfig selects and configures the progress store.
type StoreConfig struct {
	Driver string `yaml:"driver" default:"memory" validate:"oneof=memory file redis sql"`
	Path   string `yaml:"path" default:".ddialog/sessions" validate:"required_if=Driver file"`

	Redis RedisConfig `yaml:"redis"`
	SQL   SQLConfig   `yaml:"sql"`

	// EncryptionKey is a hex encoded 32 byte AES key. Empty disables encryption.
	EncryptionKey  string   `yaml:"encryption_key" validate:"omitempty,hexadecimal,len=64"`
	FallbackKeys   []string `yaml:"fallback_keys" validate:"dive,hexadecimal,len=64"`
	MaskedPatterns []string `yaml:"masked"`
}

// RedisConfig configures the redis store and distributed lock.
type RedisConfig struct {
	Address  string        `yaml:"address" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"ddialog:progress:"`
	TTL      time.Duration `yaml:"ttl" default:"24h"`
	Lock     bool          `yaml:"lock" default:"true"`
	LockTTL  time.Duration `yaml:"lock_ttl" default:"30s"`
}

// SQLConfig configures the gorm store.
type SQLConfig struct {
	Dialect string `yaml:"dialect" default:"sqlite" validate:"oneof=sqlite mysql"`
	DSN     string `yaml:"dsn" default:".ddialog/progress.db"`
}

// RecognizerConfig binds a step model name to a recognizer.
type RecognizerConfig struct {
	Model string `yaml:"model" validate:"required"`
	Kind  string `yaml:"kind" default:"keyword" validate:"oneof=luis keyword"`

	// LUIS is used when Kind is luis.
	LUIS *luis.Config `yaml:"luis" validate:"required_if=Kind luis"`

	// Intents maps intent names to keywords (keyword kind).
	Intents map[string][]string `yaml:"intents"`
	// Entities maps entity names to regular expressions (keyword kind).
	Entities map[string]string `yaml:"entities"`
}

// HTTPConfig configures `ddialog serve`.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" default:":3978" validate:"hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// TelemetryConfig configures custom events.
type TelemetryConfig struct {
	Log     bool     `yaml:"log" default:"true"`
	Metrics bool     `yaml:"metrics" default:"true"`
	Strict  bool     `yaml:"strict"`
	Redact  []string `yaml:"redact"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a Config with only defaults applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// Load reads path, applies defaults and validates. An empty path loads
// DefaultFile when present and falls back to Default otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if !filepath.IsAbs(cfg.Dialogs) {
		cfg.Dialogs = filepath.Join(filepath.Dir(path), cfg.Dialogs)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown fields.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	// Nested slices and pointers are populated by yaml after the first pass.
	for i := range cfg.Recognizers {
		if err := defaults.Set(&cfg.Recognizers[i]); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(c.Recognizers))
	for _, r := range c.Recognizers {
		if seen[r.Model] {
			return fmt.Errorf("invalid config: recognizer model %q declared twice", r.Model)
		}
		seen[r.Model] = true
	}
	if c.Dispatch != "" && !seen[c.Dispatch] {
		return fmt.Errorf("invalid config: dispatch recognizer %q is not declared", c.Dispatch)
	}
	return nil
}

// Keys decodes the active and fallback encryption keys. It returns nil when
// encryption is disabled.
func (s StoreConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = hex.DecodeString(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		b, err := hex.DecodeString(k)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid fallback key %d: %w", i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}
