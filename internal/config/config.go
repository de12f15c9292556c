// Package config provides configuration management for speedtest2dynamodb.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverDynamoDB = "dynamodb"
	DriverSQLite   = "sqlite"
)

// Config holds all runtime configuration.
type Config struct {
	// ── Measurement ──────────────────────────────────────────────────────────
	SpeedtestPath    string        `mapstructure:"speedtest_path"`
	SpeedtestArgs    []string      `mapstructure:"speedtest_args"`
	SpeedtestTimeout time.Duration `mapstructure:"speedtest_timeout"` // 0 = wait forever

	// ── Store ────────────────────────────────────────────────────────────────
	StoreDriver string `mapstructure:"store_driver"` // "dynamodb" or "sqlite"
	TableName   string `mapstructure:"table_name"`
	// ReadCapacity / WriteCapacity are provisioned only when the table is created.
	ReadCapacity     int64         `mapstructure:"read_capacity"`
	WriteCapacity    int64         `mapstructure:"write_capacity"`
	TableWaitTimeout time.Duration `mapstructure:"table_wait_timeout"`
	AWSRegion        string        `mapstructure:"aws_region"`        // empty = SDK default chain
	DynamoDBEndpoint string        `mapstructure:"dynamodb_endpoint"` // e.g. http://localhost:8000 for DynamoDB Local
	DBPath           string        `mapstructure:"db_path"`           // used when store_driver = sqlite

	// ── Write retry ──────────────────────────────────────────────────────────
	WriteMaxAttempts int           `mapstructure:"write_max_attempts"`
	WriteBaseDelay   time.Duration `mapstructure:"write_base_delay"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"` // "console" or "json"
	LogStderr     bool   `mapstructure:"log_stderr"`

	// ── Metrics ──────────────────────────────────────────────────────────────
	// MetricsTextfile, when set, receives the run's metrics in node_exporter
	// textfile format, e.g. /var/lib/node_exporter/textfile/speedtest.prom
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	// ── Read API ─────────────────────────────────────────────────────────────
	ServeAddr  string `mapstructure:"serve_addr"`
	ServeToken string `mapstructure:"serve_token"` // empty = no auth
}

// Load reads config from file (./config.yaml or ~/.speedtest2dynamodb/config.yaml)
// and falls back to defaults. A .env file in the working directory is loaded
// into the environment first; environment variables with prefix SPEEDTEST_
// override file values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return load(viper.New(), ".", "$HOME/.speedtest2dynamodb")
}

// load applies defaults, the first config.yaml found in searchPaths (none
// when empty), then the environment.
func load(v *viper.Viper, searchPaths ...string) (*Config, error) {
	setDefaults(v)

	if len(searchPaths) > 0 {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			// config file is optional; ignore "not found" errors
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SPEEDTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("speedtest_path", "speedtest-cli")
	v.SetDefault("speedtest_args", []string{"--simple"})
	v.SetDefault("speedtest_timeout", "5m")

	v.SetDefault("store_driver", DriverDynamoDB)
	v.SetDefault("table_name", "speedtestresults")
	v.SetDefault("read_capacity", 5)
	v.SetDefault("write_capacity", 5)
	v.SetDefault("table_wait_timeout", "5m")
	v.SetDefault("aws_region", "")
	v.SetDefault("dynamodb_endpoint", "")
	v.SetDefault("db_path", "speedtest.db")

	v.SetDefault("write_max_attempts", 3)
	v.SetDefault("write_base_delay", "30s")

	v.SetDefault("log_file", "/tmp/speedtest2DynamoDB.log")
	v.SetDefault("log_max_size_mb", 1)
	v.SetDefault("log_max_backups", 10)
	v.SetDefault("log_level", "debug")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_stderr", false)

	v.SetDefault("metrics_textfile", "")

	v.SetDefault("serve_addr", "127.0.0.1:8080")
	v.SetDefault("serve_token", "")
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverDynamoDB, DriverSQLite:
	default:
		return fmt.Errorf("unsupported store_driver %q (use %q or %q)", c.StoreDriver, DriverDynamoDB, DriverSQLite)
	}
	if strings.TrimSpace(c.TableName) == "" {
		return errors.New("table_name must not be empty")
	}
	if strings.TrimSpace(c.SpeedtestPath) == "" {
		return errors.New("speedtest_path must not be empty")
	}
	if c.ReadCapacity <= 0 || c.WriteCapacity <= 0 {
		return fmt.Errorf("read_capacity and write_capacity must be positive, got %d/%d", c.ReadCapacity, c.WriteCapacity)
	}
	if c.WriteMaxAttempts <= 0 {
		return fmt.Errorf("write_max_attempts must be positive, got %d", c.WriteMaxAttempts)
	}
	if c.WriteBaseDelay < 0 {
		return fmt.Errorf("write_base_delay must not be negative, got %s", c.WriteBaseDelay)
	}
	return nil
}
