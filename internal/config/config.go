// Package config handles loading and parsing of FeatherStore configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default sizing for the single-shot vs multipart upload decision.
// Both match the decimal 10 MB defaults of the original storage backend.
const (
	// DefaultMultipartThreshold is the body size at or above which Save
	// switches from a single PUT to a multipart upload.
	DefaultMultipartThreshold = 10000000
	// DefaultPartSize is the size of each multipart part except the last.
	DefaultPartSize = 10000000
	// DefaultTimeoutSeconds bounds each HTTP exchange.
	DefaultTimeoutSeconds = 60
	// DefaultEndpointDomain is the storage provider domain used to build
	// the per-bucket host {bucket}.s3.{region}.{domain}.
	DefaultEndpointDomain = "amazonaws.com"
)

// Config is the top-level configuration for the FeatherStore client.
// Every component receives its settings explicitly at construction; there
// are no process-wide mutable defaults.
type Config struct {
	// Bucket is the target bucket name. Required.
	Bucket string `yaml:"bucket"`
	// Region is the bucket's region, used in both the host name and the
	// credential scope. Required.
	Region string `yaml:"region"`
	// AccessKey is the access key ID used for SigV4 signing.
	AccessKey string `yaml:"access_key"`
	// SecretKey is the secret access key used for SigV4 signing.
	SecretKey string `yaml:"secret_key"`
	// SessionToken is set when using temporary credentials.
	SessionToken string `yaml:"session_token"`
	// EndpointDomain is the provider domain for the per-bucket host.
	// Defaults to amazonaws.com; change it for S3-compatible providers.
	EndpointDomain string `yaml:"endpoint_domain"`
	// Endpoint, when set, replaces the derived per-bucket URL entirely
	// (scheme://host[:port]). Used with local S3-compatible servers.
	Endpoint string `yaml:"endpoint"`
	// PublicBaseURL is the display URL prefix returned by Store.URL.
	PublicBaseURL string `yaml:"public_base_url"`
	// MultipartThreshold is the single-shot vs multipart cutoff in bytes.
	MultipartThreshold int64 `yaml:"multipart_threshold"`
	// PartSize is the multipart part size in bytes.
	PartSize int64 `yaml:"part_size"`
	// TimeoutSeconds bounds each HTTP exchange.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: text, json.
	Format string `yaml:"format"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config with defaults applied.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the fields without usable defaults are set.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("config: bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("config: region is required")
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		EndpointDomain:     DefaultEndpointDomain,
		MultipartThreshold: DefaultMultipartThreshold,
		PartSize:           DefaultPartSize,
		TimeoutSeconds:     DefaultTimeoutSeconds,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.EndpointDomain == "" {
		cfg.EndpointDomain = DefaultEndpointDomain
	}
	if cfg.MultipartThreshold == 0 {
		cfg.MultipartThreshold = DefaultMultipartThreshold
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
