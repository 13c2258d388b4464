package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Retry    Retry    `mapstructure:"retry"`
	Thumb    Thumb    `mapstructure:"thumb"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for source images, the thumbnail cache and
// the optional object storage the results are published to.
type Storage struct {
	BaseDir  string `mapstructure:"base_dir"`  // root of every source and output path
	CacheDir string `mapstructure:"cache_dir"` // cache directory, relative to BaseDir
	Minio    Minio  `mapstructure:"minio"`
}

// Minio holds S3-compatible object storage settings.
type Minio struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	Prefix     string `mapstructure:"prefix"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for the Kafka message queue.
type Kafka struct {
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Topic   string   `mapstructure:"topic"`    // Kafka topic name
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Thumb holds rendering defaults.
type Thumb struct {
	DefaultQuality int    `mapstructure:"default_quality"` // JPEG quality when no quality operation is queued
	CacheSeconds   int    `mapstructure:"cache_seconds"`   // max-age of rendered responses; 0 disables HTTP caching
	Background     string `mapstructure:"background"`      // default padding colour, #rrggbb
	MaxPixels      int    `mapstructure:"max_pixels"`      // largest bitmap area an operation may create
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.cache_dir", "cache")
	v.SetDefault("thumb.default_quality", 90)
	v.SetDefault("thumb.cache_seconds", 604800)
	v.SetDefault("thumb.background", "#ffffff")
	v.SetDefault("thumb.max_pixels", 64<<20)
}

// bindEnv binds critical environment variables to config keys.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"database.master.host":      "DB_HOST",
		"database.master.port":      "DB_PORT",
		"database.master.user":      "DB_USER",
		"database.master.pass":      "DB_PASSWORD",
		"database.master.name":      "DB_NAME",
		"storage.base_dir":          "STORAGE_BASE_DIR",
		"storage.minio.endpoint":    "MINIO_ENDPOINT",
		"storage.minio.access_key":  "MINIO_ACCESS_KEY",
		"storage.minio.secret_key":  "MINIO_SECRET_KEY",
		"storage.minio.bucket_name": "MINIO_BUCKET",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads the configuration from the YAML file at path. Variables from a
// .env file in the working directory are loaded first when the file exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
