// Package config handles application configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/imedwei/archive-upload/internal/age"
)

const (
	defaultAppDir       = "~/.archive-upload"
	defaultLogLevel     = "INFO"
	defaultQueueBackend = "json"
	defaultProvider     = "s3"
	defaultCompression  = "bzip2"
	defaultMetricsJob   = "archive-upload"
)

// Config holds all application configuration.
type Config struct {
	LogLevel     string `yaml:"log-level"`
	LogFileDir   string `yaml:"log-file-dir"`
	AppDir       string `yaml:"app-dir"`
	QueueBackend string `yaml:"queue-backend"` // "json" or "bolt"

	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`

	Directories []DirectoryConfig `yaml:"directories"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	Provider string    `yaml:"provider"` // "s3", "gcs" or "file"
	S3       S3Config  `yaml:"s3"`
	GCS      GCSConfig `yaml:"gcs"`
	File     struct {
		Root string `yaml:"root"`
	} `yaml:"file"`
}

// S3Config holds S3 settings. Credentials come from the SDK default chain.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"` // Optional custom endpoint
	UsePathStyle bool   `yaml:"use-path-style"`
	Profile      string `yaml:"profile"`
}

// GCSConfig holds GCS settings.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials-file"`
}

// MetricsConfig configures the optional Prometheus push at the end of a run
// and the optional status server that lives for the duration of the run.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway-url"`
	Job            string `yaml:"job"`
	ListenAddr     string `yaml:"listen-addr"`
}

// DirectoryConfig describes one watched source directory.
type DirectoryConfig struct {
	Directory    string          `yaml:"directory"`
	ArchiveDir   string          `yaml:"archive-dir"`
	BucketAndKey string          `yaml:"bucket-and-key"`
	DeleteAfter  float64         `yaml:"delete-after"` // days, 0 disables retention
	Compression  string          `yaml:"compression"`
	FilePatterns []PatternConfig `yaml:"file-patterns"`
}

// PatternConfig is a glob within a DirectoryConfig.
type PatternConfig struct {
	Pattern      string   `yaml:"pattern"`
	FinishedSecs *float64 `yaml:"finished-secs"`
}

// Load reads the configuration file at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults fills in optional values and expands home-relative paths.
func (c *Config) SetDefaults() error {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.AppDir == "" {
		c.AppDir = defaultAppDir
	}
	if c.QueueBackend == "" {
		c.QueueBackend = defaultQueueBackend
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = defaultProvider
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = defaultMetricsJob
	}

	var err error
	if c.AppDir, err = expandHome(c.AppDir); err != nil {
		return err
	}
	if c.LogFileDir == "" {
		c.LogFileDir = filepath.Join(c.AppDir, "log")
	}
	if c.LogFileDir, err = expandHome(c.LogFileDir); err != nil {
		return err
	}

	for i := range c.Directories {
		d := &c.Directories[i]
		if d.Compression == "" {
			d.Compression = defaultCompression
		}
		if d.Directory, err = expandHome(d.Directory); err != nil {
			return err
		}
		if d.ArchiveDir, err = expandHome(d.ArchiveDir); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case "json", "bolt":
	default:
		return fmt.Errorf("invalid queue-backend: %s (must be 'json' or 'bolt')", c.QueueBackend)
	}

	switch c.Storage.Provider {
	case "s3", "gcs":
	case "file":
		if c.Storage.File.Root == "" {
			return fmt.Errorf("storage.file.root is required for file storage")
		}
	default:
		return fmt.Errorf("invalid storage provider: %s (must be 's3', 'gcs' or 'file')", c.Storage.Provider)
	}

	if len(c.Directories) == 0 {
		return fmt.Errorf("at least one entry in directories is required")
	}

	for i, d := range c.Directories {
		if err := d.validate(); err != nil {
			return fmt.Errorf("directories[%d]: %w", i, err)
		}
	}

	return nil
}

func (d DirectoryConfig) validate() error {
	if d.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	if d.ArchiveDir == "" {
		return fmt.Errorf("archive-dir is required")
	}
	bucket, _, _ := strings.Cut(strings.TrimPrefix(d.BucketAndKey, "/"), "/")
	if bucket == "" {
		return fmt.Errorf("bucket-and-key must start with a bucket name")
	}
	if d.DeleteAfter < 0 {
		return fmt.Errorf("delete-after must be non-negative")
	}
	switch d.Compression {
	case "bzip2", "gzip", "zstd":
	default:
		return fmt.Errorf("invalid compression: %s (must be 'bzip2', 'gzip' or 'zstd')", d.Compression)
	}
	if len(d.FilePatterns) == 0 {
		return fmt.Errorf("at least one file pattern is required")
	}
	for j, p := range d.FilePatterns {
		if p.Pattern == "" {
			return fmt.Errorf("file-patterns[%d]: pattern is required", j)
		}
		if !doublestar.ValidatePattern(p.Pattern) {
			return fmt.Errorf("file-patterns[%d]: invalid glob %q", j, p.Pattern)
		}
		if p.FinishedSecs != nil && *p.FinishedSecs < 0 {
			return fmt.Errorf("file-patterns[%d]: finished-secs must be non-negative", j)
		}
	}
	return nil
}

// FinishedAfter returns the age a matched file must exceed to be archived.
func (p PatternConfig) FinishedAfter() time.Duration {
	return age.Threshold(p.FinishedSecs)
}

// MaxArchiveAge returns the retention age, or zero when retention is disabled.
func (d DirectoryConfig) MaxArchiveAge() time.Duration {
	if d.DeleteAfter <= 0 {
		return 0
	}
	return time.Duration(d.DeleteAfter * 24 * float64(time.Hour))
}

// QueuePath returns the location of the persisted pending-upload queue.
func (c *Config) QueuePath() string {
	if c.QueueBackend == "bolt" {
		return filepath.Join(c.AppDir, "upload_pending.db")
	}
	return filepath.Join(c.AppDir, "upload_pending.json")
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
