// Package config loads the settings of a lambdaroute function from an
// optional yaml file, an optional .env file and LAMBDAROUTE_ prefixed
// environment variables, in that order of precedence from lowest to highest.
package config

import (
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/prognoshealth/lambdaroute/lambdautils"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LAMBDAROUTE_"

// Config holds the resolver and idempotency lock settings.
type Config struct {
	Debug         bool     `yaml:"debug" env:"DEBUG"`
	Validation    bool     `yaml:"validation" env:"VALIDATION"`
	StripPrefixes []string `yaml:"strip_prefixes" env:"STRIP_PREFIXES"`
	LogLevel      string   `yaml:"log_level" env:"LOG_LEVEL"`

	Lock LockConfig `yaml:"lock" envPrefix:"LOCK_"`
}

// LockConfig configures the dynamodb table backing idempotency keys. The
// lock is disabled when Table is empty.
type LockConfig struct {
	Table  string `yaml:"table" env:"TABLE"`
	Region string `yaml:"region" env:"REGION"`
	TTL    int64  `yaml:"ttl" env:"TTL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Lock: LockConfig{
			Region: "us-east-1",
			TTL:    300,
		},
	}
}

// Load returns the configuration built from defaults, the yaml file at path
// (skipped when path is empty), the dotenv files (".env" when none are given,
// missing files are ignored) and the environment.
func Load(path string, dotenv ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadConfigFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}

	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "failed loading %s", f)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "failed parsing environment")
	}

	if _, err := cfg.ZapLevel(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics on failure.
func MustLoad(path string, dotenv ...string) *Config {
	cfg, err := Load(path, dotenv...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromFile decodes the yaml file at path over cfg. Keys missing
// from the file leave cfg untouched.
func LoadConfigFromFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed opening config file %s", path)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed decoding config file %s", path)
	}

	return nil
}

// ZapLevel parses LogLevel.
func (c *Config) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "invalid log level '%s'", c.LogLevel)
	}
	return level, nil
}

// RequestLock returns the idempotency lock described by the configuration,
// or nil when no table is configured.
func (c *Config) RequestLock() *lambdautils.RequestLock {
	if c.Lock.Table == "" {
		return nil
	}
	return lambdautils.NewRequestLock(c.Lock.Region, c.Lock.Table, c.Lock.TTL, 0)
}
