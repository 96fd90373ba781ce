package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/rocketscienceinc/gamesession-backend/internal/reveal"
)

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrInvalidValue  = errors.New("invalid config value")
)

type Config struct {
	LogLevel          string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort          string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	AllowedOrigins    []string `yaml:"allowed-origins" env:"ALLOWED_ORIGINS"`
	Storage           Storage  `yaml:"storage"`
	Redis             Redis    `yaml:"redis"`
	SQLiteStoragePath string   `yaml:"sqlite-storage-path" env:"SQLITE_STORAGE_PATH" env-default:"sessions.db"`
	Session           Session  `yaml:"session"`
	Otel              Otel     `yaml:"otel"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`

	// Relay shares commits with other instances on the same Redis.
	Relay   bool          `yaml:"relay" env:"REDIS_RELAY" env-default:"true"`
	MaxWait time.Duration `yaml:"max-wait" env:"REDIS_MAX_WAIT" env-default:"30s"`
}

type Session struct {
	IdleTimeout       time.Duration `yaml:"idle-timeout" env:"SESSION_IDLE_TIMEOUT" env-default:"10m"`
	FinishedRetention time.Duration `yaml:"finished-retention" env:"SESSION_FINISHED_RETENTION" env-default:"2m"`
	LockTimeout       time.Duration `yaml:"lock-timeout" env:"SESSION_LOCK_TIMEOUT" env-default:"2s"`
	CodeLength        int           `yaml:"code-length" env:"SESSION_CODE_LENGTH" env-default:"6"`
	CodeAttempts      int           `yaml:"code-attempts" env:"SESSION_CODE_ATTEMPTS" env-default:"8"`
	RevealCells       int           `yaml:"reveal-cells" env:"SESSION_REVEAL_CELLS" env-default:"256"`
}

type Otel struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"gamesession-backend"`
}

// Load - load all configurations in config.yml file, apply env overrides and validate them.
func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) Validate() error {
	switch that.Storage.Driver {
	case DriverRedis, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, that.Storage.Driver)
	}

	if that.Session.IdleTimeout <= 0 || that.Session.LockTimeout <= 0 {
		return fmt.Errorf("%w: session timeouts must be positive", ErrInvalidValue)
	}

	// zero retention removes finished sessions on the next sweep
	if that.Session.FinishedRetention < 0 {
		return fmt.Errorf("%w: finished-retention must not be negative", ErrInvalidValue)
	}

	if that.Session.CodeLength < 4 || that.Session.CodeAttempts < 1 {
		return fmt.Errorf("%w: session codes need length >= 4 and at least one attempt", ErrInvalidValue)
	}

	if that.Session.RevealCells < 1 || that.Session.RevealCells > reveal.MaxCells {
		return fmt.Errorf("%w: reveal-cells must be between 1 and %d", ErrInvalidValue, reveal.MaxCells)
	}

	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
