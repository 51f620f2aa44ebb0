package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go-cane-inspector/pkg/models"
	"go-cane-inspector/pkg/validation"
)

type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// Endpoint is the analysis server base URL; /api/analyze is appended
	Endpoint           string        `yaml:"endpoint"`
	SubmitTimeout      time.Duration `yaml:"submit_timeout"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ImageFetchTimeout  time.Duration `yaml:"image_fetch_timeout"`
	MaxFileSize        int64         `yaml:"max_file_size"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	LogLevel           string        `yaml:"log_level"`

	Defaults models.AnalysisParameters `yaml:"defaults"`
	Azure    AzureConfig               `yaml:"azure"`
	Output   OutputConfig              `yaml:"output"`
}

type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	ServiceURL  string `yaml:"service_url"`
}

type OutputConfig struct {
	Format string `yaml:"format"`
	Color  bool   `yaml:"color"`
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		Endpoint:           "http://localhost:5000",
		SubmitTimeout:      60 * time.Second,
		RequestTimeout:     30 * time.Second,
		ImageFetchTimeout:  15 * time.Second,
		MaxFileSize:        validation.MaxFileSize,
		MaxRequestBodySize: validation.MaxFileSize + 1024*1024, // multipart overhead
		LogLevel:           "info",
		Defaults:           models.DefaultParameters(),
		Output:             OutputConfig{Format: "terminal", Color: true},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or CONFIG_FILE), then .env, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.Endpoint = getEnvOrDefault("ANALYSIS_ENDPOINT", cfg.Endpoint)
	cfg.SubmitTimeout = parseDurationOrDefault("ANALYSIS_TIMEOUT", cfg.SubmitTimeout)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", cfg.ImageFetchTimeout)
	cfg.MaxFileSize = parseIntOrDefault("MAX_FILE_SIZE", cfg.MaxFileSize)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)
	cfg.InsecureSkipVerify = parseBoolOrDefault("INSECURE_SKIP_VERIFY", cfg.InsecureSkipVerify)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.Output.Format = getEnvOrDefault("OUTPUT_FORMAT", cfg.Output.Format)
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		cfg.Output.Color = false
	}

	cfg.Azure.AccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.Azure.AccountName)
	cfg.Azure.AccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.Azure.AccountKey)
	cfg.Azure.ServiceURL = getEnvOrDefault("AZURE_BLOB_SERVICE_URL", cfg.Azure.ServiceURL)

	if value := os.Getenv("DEFAULT_MODEL_TYPE"); value != "" {
		m, err := models.ParseModelType(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid DEFAULT_MODEL_TYPE: %w", err)
		}
		cfg.Defaults.ModelType = m
	}
	if value := os.Getenv("DEFAULT_CONF_THRESHOLD"); value != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("invalid DEFAULT_CONF_THRESHOLD: %q", value)
		}
		cfg.Defaults.ConfidenceThreshold = v
	}
	return nil
}

// Validate checks ranges and the endpoint URL
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if err := validation.NewURLValidator().ValidateEndpoint(c.Endpoint); err != nil {
		return fmt.Errorf("invalid ANALYSIS_ENDPOINT %q: %w", c.Endpoint, err)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be > 0 (got %d)", c.MaxFileSize)
	}
	if c.MaxRequestBodySize < c.MaxFileSize {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be >= MAX_FILE_SIZE (got %d < %d)",
			c.MaxRequestBodySize, c.MaxFileSize)
	}
	if c.SubmitTimeout <= 0 || c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got submit=%s, request=%s, fetch=%s)",
			c.SubmitTimeout, c.RequestTimeout, c.ImageFetchTimeout)
	}
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("invalid default parameters: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
