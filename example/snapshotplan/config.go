package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

const (
	configName = "snapshotplan"
	envPrefix  = "SNAPSHOTPLAN"

	driverPGX    = "pgx"
	driverPQ     = "postgres"
	driverSQLX   = "sqlx"
	driverSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the settings of the tool.
type Config struct {
	ModelsFile    string
	Project       string
	TTL           string
	BatchSize     int
	Dev           bool
	LogLevel      slog.Level
	Observability bool
	Database      DatabaseConfig
}

// DatabaseConfig selects the state store backend.
type DatabaseConfig struct {
	Driver         string
	DSN            string
	SnapshotsTable string
	IntervalsTable string
	MaxConns       int32
}

// LoadConfig reads snapshotplan.yaml from configPath, if present, and applies environment overrides.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("models_file", "models.yaml")
	v.SetDefault("project", "")
	v.SetDefault("ttl", snapshot.DefaultTTL)
	v.SetDefault("batch_size", 0)
	v.SetDefault("dev", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("observability", false)
	v.SetDefault("database.driver", driverSQLite)
	v.SetDefault("database.dsn", "snapshots.db")
	v.SetDefault("database.snapshots_table", "snapshots")
	v.SetDefault("database.intervals_table", "intervals")
	v.SetDefault("database.max_conns", 4)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Join(ErrInvalidConfig, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	cfg := Config{
		ModelsFile:    v.GetString("models_file"),
		Project:       v.GetString("project"),
		TTL:           v.GetString("ttl"),
		BatchSize:     v.GetInt("batch_size"),
		Dev:           v.GetBool("dev"),
		LogLevel:      level,
		Observability: v.GetBool("observability"),
		Database: DatabaseConfig{
			Driver:         v.GetString("database.driver"),
			DSN:            v.GetString("database.dsn"),
			SnapshotsTable: v.GetString("database.snapshots_table"),
			IntervalsTable: v.GetString("database.intervals_table"),
			MaxConns:       v.GetInt32("database.max_conns"),
		},
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case driverPGX, driverPQ, driverSQLX, driverSQLite:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database dsn must not be empty", ErrInvalidConfig)
	}

	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative", ErrInvalidConfig)
	}

	if err := snapshot.ValidateTTL(c.TTL); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	return nil
}
