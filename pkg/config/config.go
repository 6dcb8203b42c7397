package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// S3Config holds credentials for an S3-compatible backend.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// GCSConfig holds credentials for a Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// AzureConfig holds credentials for an Azure Blob Storage backend.
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
}

// StorageConfig groups the optional remote backend sections. A section
// left empty means that backend is not registered.
type StorageConfig struct {
	S3    S3Config    `mapstructure:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
}

type Config struct {
	// Required fields
	BackupDir   string `mapstructure:"backup_dir"`
	ExportDir   string `mapstructure:"export_dir"`
	DatabaseDSN string `mapstructure:"database_dsn"`

	// Backup engine settings
	RetentionDays        int `mapstructure:"retention_days"`
	CompressionLevel     int `mapstructure:"compression_level"`
	ChunkSize            int `mapstructure:"chunk_size"`
	MaxConcurrentBackups int `mapstructure:"max_concurrent_backups"`

	// Format settings
	DefaultFormat      string   `mapstructure:"default_format"`
	AllowedFormats     []string `mapstructure:"allowed_formats"`
	CompressionFormats []string `mapstructure:"compression_formats"`

	// Export engine settings
	RateLimitRPM    int `mapstructure:"rate_limit_rpm"`
	StreamChunkSize int `mapstructure:"stream_chunk_size"`
	MaxLimit        int `mapstructure:"max_limit"`

	// Remote storage backends
	Storage StorageConfig `mapstructure:"storage"`

	// Optional API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// Optional CORS settings
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Optional logging settings
	LogLevel string `mapstructure:"log_level"`

	ConfigPath string
}

const (
	DefaultConfigPath           = "/etc/dbferry/config.yml"
	DefaultAPIHost              = "0.0.0.0"
	DefaultAPIPort              = 8440
	DefaultLogLevel             = "info"
	DefaultRetentionDays        = 90
	DefaultChunkSize            = 10000
	DefaultMaxConcurrentBackups = 3
	DefaultCompressionLevel     = 6
	DefaultFormat               = "json"
	DefaultRateLimitRPM         = 60
	DefaultStreamChunkSize      = 1000
	DefaultMaxLimit             = 100000
)

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("api_host", DefaultAPIHost)
	viper.SetDefault("api_port", DefaultAPIPort)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("retention_days", DefaultRetentionDays)
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("max_concurrent_backups", DefaultMaxConcurrentBackups)
	viper.SetDefault("compression_level", DefaultCompressionLevel)
	viper.SetDefault("default_format", DefaultFormat)
	viper.SetDefault("allowed_formats", []string{"json", "csv", "ndjson", "xml", "sql"})
	viper.SetDefault("compression_formats", []string{"gzip"})
	viper.SetDefault("rate_limit_rpm", DefaultRateLimitRPM)
	viper.SetDefault("stream_chunk_size", DefaultStreamChunkSize)
	viper.SetDefault("max_limit", DefaultMaxLimit)

	// Allow environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvPrefix("DBFERRY")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigPath = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export_dir is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database_dsn is required")
	}

	if _, err := os.Stat(c.BackupDir); os.IsNotExist(err) {
		return fmt.Errorf("backup_dir does not exist: %s", c.BackupDir)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.MaxConcurrentBackups <= 0 {
		return fmt.Errorf("max_concurrent_backups must be positive")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be between 1 and 9")
	}

	if !c.FormatAllowed(c.DefaultFormat) {
		return fmt.Errorf("default_format %q is not in allowed_formats", c.DefaultFormat)
	}

	return nil
}

// FormatAllowed reports whether a format is on the whitelist.
func (c *Config) FormatAllowed(format string) bool {
	for _, f := range c.AllowedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// CompressionAllowed reports whether an archive format is on the whitelist.
func (c *Config) CompressionAllowed(format string) bool {
	for _, f := range c.CompressionFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (c *Config) IsDevMode() bool {
	return os.Getenv("DBFERRY_DEV_MODE") == "1"
}
