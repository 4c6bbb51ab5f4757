package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Extract  ExtractConfig  `toml:"extract"`
	Export   ExportConfig   `toml:"export"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains settings for the local SQLite fingerprint cache.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CatalogConfig locates the document catalog holding the music file records.
//
// The URI scheme selects the backend: mongodb:// or mongodb+srv:// for MongoDB,
// postgres:// or postgresql:// for PostgreSQL.
type CatalogConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
	Table      string `toml:"table"`
}

// ExtractConfig tunes the extraction pipeline.
type ExtractConfig struct {
	BasePath        string   `toml:"base_path"`
	ChunkSize       int      `toml:"chunk_size"`
	Workers         int      `toml:"workers"`
	QueueTimeout    Duration `toml:"queue_timeout"`
	PollTimeout     Duration `toml:"poll_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	Fpcalc          string   `toml:"fpcalc"`
	FpcalcLength    int      `toml:"fpcalc_length"`
	Extensions      []string `toml:"extensions"`
	RateLimit       float64  `toml:"rate_limit"`
}

// ExportConfig contains settings for copying cached fingerprints into PostgreSQL.
type ExportConfig struct {
	DSN       string `toml:"dsn"`
	Table     string `toml:"table"`
	BatchSize int    `toml:"batch_size"`
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] written as a string ("30s", "1m") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports configuration that would make an extraction run meaningless.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Catalog.URI) == "" {
		return fmt.Errorf("%w: catalog.uri is empty", ErrInvalidConfig)
	}
	if c.Extract.ChunkSize <= 0 {
		return fmt.Errorf("%w: extract.chunk_size must be positive, got %d", ErrInvalidConfig, c.Extract.ChunkSize)
	}
	if c.Extract.Workers < 0 {
		return fmt.Errorf("%w: extract.workers must not be negative, got %d", ErrInvalidConfig, c.Extract.Workers)
	}
	if c.Extract.QueueTimeout.Duration <= 0 || c.Extract.PollTimeout.Duration <= 0 {
		return fmt.Errorf("%w: extract timeouts must be positive", ErrInvalidConfig)
	}
	if c.Extract.RateLimit < 0 {
		return fmt.Errorf("%w: extract.rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
