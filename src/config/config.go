// Package config provides configuration management for the Sift application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	// Brokers lists Redpanda/Kafka seed addresses. Empty selects the in-memory broker.
	Brokers []string `yaml:"brokers"`
	// PostgresDSN enables durable checkpoints. Empty selects the in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`

	InferenceAPIKey string `yaml:"inference_api_key"`
	InferenceModel  string `yaml:"inference_model"`
	InferenceURL    string `yaml:"inference_url"`

	GitHubToken         string `yaml:"github_token"`
	GitHubWebhookSecret string `yaml:"github_webhook_secret"`

	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxOutstanding int           `yaml:"max_outstanding"`
	MaxRetries     int           `yaml:"max_retries"`
	JobTimeout     time.Duration `yaml:"job_timeout"`

	ListenAddr string `yaml:"listen_addr"`
	// RepoConfigDir holds per-repository overrides as <owner>/<repo>.yaml.
	RepoConfigDir string `yaml:"repo_config_dir"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		MaxConcurrency: 4,
		MaxOutstanding: 16,
		MaxRetries:     3,
		JobTimeout:     10 * time.Minute,
		ListenAddr:     ":8080",
		LogLevel:       "info",
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load reads an optional YAML file over the defaults, then applies environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.MaxOutstanding < 1 {
		return fmt.Errorf("max outstanding must be at least 1, got %d", c.MaxOutstanding)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job timeout must be positive, got %s", c.JobTimeout)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SIFT_BROKERS"); v != "" {
		c.Brokers = splitList(v)
	}
	setString(&c.PostgresDSN, "SIFT_POSTGRES_DSN")
	setString(&c.InferenceAPIKey, "SIFT_INFERENCE_API_KEY")
	setString(&c.InferenceModel, "SIFT_INFERENCE_MODEL")
	setString(&c.InferenceURL, "SIFT_INFERENCE_URL")
	setString(&c.GitHubToken, "GITHUB_TOKEN")
	setString(&c.GitHubWebhookSecret, "GITHUB_WEBHOOK_SECRET")
	setString(&c.ListenAddr, "SIFT_LISTEN_ADDR")
	setString(&c.RepoConfigDir, "SIFT_REPO_CONFIG_DIR")
	setString(&c.LogLevel, "SIFT_LOG_LEVEL")

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"SIFT_MAX_CONCURRENCY", &c.MaxConcurrency},
		{"SIFT_MAX_OUTSTANDING", &c.MaxOutstanding},
		{"SIFT_MAX_RETRIES", &c.MaxRetries},
	} {
		if v := os.Getenv(f.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s must be an integer: %w", f.name, err)
			}
			*f.dst = n
		}
	}

	if v := os.Getenv("SIFT_JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SIFT_JOB_TIMEOUT must be a duration: %w", err)
		}
		c.JobTimeout = d
	}
	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
