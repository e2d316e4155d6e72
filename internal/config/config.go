// Package config provides configuration loading for the itemcore runtime.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete itemcore configuration.
type Config struct {
	Schema  SchemaConfig  `yaml:"schema"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Logging LoggingConfig `yaml:"logging"`
}

// SchemaConfig locates the schema documents.
type SchemaConfig struct {
	// Path is a schema file or a directory of documents.
	Path string `yaml:"path"`
	// Watch enables hot reloading of schema documents.
	Watch bool `yaml:"watch"`
	// DebounceDelay is how long to wait for more changes before reloading.
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

// StorageConfig selects the snapshot store backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `yaml:"driver"`
	// SQLitePath is the sqlite database file when driver=sqlite.
	SQLitePath string `yaml:"sqlite_path"`
	// PostgresDSN is the connection string when driver=postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects the file payload backend.
type BlobConfig struct {
	// Driver is one of fs, s3, memory.
	Driver string `yaml:"driver"`
	// FSRoot is the directory root when driver=fs.
	FSRoot string `yaml:"fs_root"`
	// S3Bucket is required when driver=s3.
	S3Bucket string `yaml:"s3_bucket"`
	// S3Region defaults to us-east-1.
	S3Region string `yaml:"s3_region"`
	// S3Endpoint enables MinIO style custom endpoints.
	S3Endpoint string `yaml:"s3_endpoint"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Schema: SchemaConfig{
			Path:          "schema",
			Watch:         false,
			DebounceDelay: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Driver:     "memory",
			SQLitePath: "itemcore.db",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./blobdata",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Schema.Path == "" {
		return fmt.Errorf("schema.path is required")
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite or postgres")
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required when driver=postgres")
	}
	switch c.Blob.Driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("blob.driver must be fs, s3 or memory")
	}
	if c.Blob.Driver == "s3" && c.Blob.S3Bucket == "" {
		return fmt.Errorf("blob.s3_bucket is required when driver=s3")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file layered over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads the config file at path when it exists, otherwise returns
// defaults. Environment variables consumed by the storage and blob factories
// are exported so that both construction paths agree.
func Load(path string) (*Config, error) {
	var config *Config
	if path == "" {
		config = DefaultConfig()
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		config = DefaultConfig()
	} else {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	config.export()
	return config, nil
}

// export mirrors file settings into the environment variables read by the
// snapshot store and blob factories.
func (c *Config) export() {
	setenvDefault("ITEMCORE_STORAGE_DRIVER", c.Storage.Driver)
	setenvDefault("ITEMCORE_SQLITE_PATH", c.Storage.SQLitePath)
	setenvDefault("ITEMCORE_POSTGRES_DSN", c.Storage.PostgresDSN)
	setenvDefault("ITEMCORE_BLOB_DRIVER", c.Blob.Driver)
	setenvDefault("ITEMCORE_BLOB_FS_ROOT", c.Blob.FSRoot)
	setenvDefault("ITEMCORE_BLOB_S3_BUCKET", c.Blob.S3Bucket)
	setenvDefault("ITEMCORE_BLOB_S3_REGION", c.Blob.S3Region)
	setenvDefault("ITEMCORE_BLOB_S3_ENDPOINT", c.Blob.S3Endpoint)
}

func setenvDefault(key, value string) {
	if value == "" {
		return
	}
	if _, set := os.LookupEnv(key); set {
		return
	}
	_ = os.Setenv(key, value)
}

// Logger builds a slog.Logger from the logging section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(c.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
