// Package config loads service configuration from YAML, an optional .env
// file and NUTRISCAN_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"nutriscan/ml"
	"nutriscan/pipeline"
)

const envPrefix = "NUTRISCAN_"

// Config is the full service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Validation ValidationConfig `yaml:"validation"`
	Cache      CacheConfig      `yaml:"cache"`
	Feed       FeedConfig       `yaml:"feed"`
}

// HTTPConfig configures the listener and request limits.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// LogConfig selects the log level, encoding and optional rotated file.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ArtifactsConfig locates the fitted transform and model. Locations are
// local paths or s3://bucket/key.
type ArtifactsConfig struct {
	Transform string `yaml:"transform"`
	Model     string `yaml:"model"`
	FailFast  bool   `yaml:"fail_fast"`
	Watch     bool   `yaml:"watch"`
	S3Region  string `yaml:"s3_region"`
}

// ValidationConfig holds input validation policy.
type ValidationConfig struct {
	NegativePolicy string `yaml:"negative_policy"`
}

// CacheConfig sizes the result cache. Zero disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// FeedConfig toggles the verdict WebSocket feed.
type FeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Artifacts: ArtifactsConfig{
			Transform: "artifacts/scaler.json",
			Model:     "artifacts/model.json",
			FailFast:  true,
			Watch:     true,
		},
		Validation: ValidationConfig{NegativePolicy: string(pipeline.NegativeReject)},
		Cache:      CacheConfig{Size: 1024},
		Feed:       FeedConfig{Enabled: true},
	}
}

// Load reads path on top of the defaults. An empty path skips the file.
// Relative local artifact paths are resolved against the config file's
// directory.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		cfg.Artifacts.Transform = resolve(filepath.Dir(path), cfg.Artifacts.Transform)
		cfg.Artifacts.Model = resolve(filepath.Dir(path), cfg.Artifacts.Model)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"TRANSFORM_PATH":  &c.Artifacts.Transform,
		"MODEL_PATH":      &c.Artifacts.Model,
		"S3_REGION":       &c.Artifacts.S3Region,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
		"LOG_FILE":        &c.Log.File,
		"NEGATIVE_POLICY": &c.Validation.NegativePolicy,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HTTP_PORT":  &c.HTTP.Port,
		"CACHE_SIZE": &c.Cache.Size,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "FAIL_FAST"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sFAIL_FAST: %w", envPrefix, err)
		}
		c.Artifacts.FailFast = b
	}
	return nil
}

// Validate rejects out-of-range or unknown settings.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.Artifacts.Transform == "" {
		return errors.New("artifacts.transform is required")
	}
	if c.Artifacts.Model == "" {
		return errors.New("artifacts.model is required")
	}
	if _, err := pipeline.ParseNegativePolicy(c.Validation.NegativePolicy); err != nil {
		return fmt.Errorf("validation.negative_policy: %w", err)
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	return nil
}

// NegativePolicy returns the parsed policy. Validate has already rejected
// unknown values.
func (c *Config) NegativePolicy() pipeline.NegativePolicy {
	policy, _ := pipeline.ParseNegativePolicy(c.Validation.NegativePolicy)
	return policy
}

func resolve(base, location string) string {
	if location == "" || filepath.IsAbs(location) || ml.IsRemote(location) {
		return location
	}
	return filepath.Join(base, location)
}
