package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"

	"github.com/sykell/igprovision/internal/db"
)

// ServerConf holds HTTP server settings.
type ServerConf struct {
	Port            string        `ini:"port" validate:"required"`
	ReadTimeout     time.Duration `ini:"read_timeout"`
	WriteTimeout    time.Duration `ini:"write_timeout"`
	IdleTimeout     time.Duration `ini:"idle_timeout"`
	ShutdownTimeout time.Duration `ini:"shutdown_timeout"`
	JWTSecret       string        `ini:"jwt_secret"`
	TokenDuration   time.Duration `ini:"token_duration" validate:"gt=0"`
}

// ProbeConf controls proxy validation.
type ProbeConf struct {
	Target         string        `ini:"target" validate:"required,url"`
	Timeout        time.Duration `ini:"timeout" validate:"gt=0"`
	RequestTimeout time.Duration `ini:"request_timeout" validate:"gt=0"`
	Concurrency    int           `ini:"concurrency" validate:"min=1"`
}

// LoginConf controls the login stage.
type LoginConf struct {
	BaseURL        string        `ini:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `ini:"request_timeout" validate:"gt=0"`
	Workers        int           `ini:"workers" validate:"min=1"`
	SessionDir     string        `ini:"session_dir" validate:"required"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
	JSON  bool   `ini:"json"`
}

// Config is the application configuration.
type Config struct {
	Server   ServerConf `ini:"server"`
	Database db.Config  `ini:"database"`
	Probe    ProbeConf  `ini:"probe"`
	Login    LoginConf  `ini:"login"`
	Log      LogConf    `ini:"log"`
}

var validate = validator.New()

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConf{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    15 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			TokenDuration:   24 * time.Hour,
		},
		Database: *db.NewConfig(),
		Probe: ProbeConf{
			Target:         "https://httpbin.org/ip",
			Timeout:        30 * time.Second,
			RequestTimeout: 60 * time.Second,
			Concurrency:    32,
		},
		Login: LoginConf{
			BaseURL:        "https://i.instagram.com",
			RequestTimeout: 90 * time.Second,
			Workers:        1,
			SessionDir:     "sessions",
		},
		Log: LogConf{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then .env, then the optional ini
// file, then environment overrides. The result is validated.
func Load(iniPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg := Default()

	if iniPath != "" {
		file, err := ini.Load(iniPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", iniPath, err)
		}
		if err := file.MapTo(cfg); err != nil {
			return nil, fmt.Errorf("failed to map config file %s: %w", iniPath, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Server.Port, "PORT")
	overrideString(&c.Server.JWTSecret, "JWT_SECRET")
	overrideDuration(&c.Server.TokenDuration, "JWT_DURATION")

	c.Database.ApplyEnv()

	overrideString(&c.Probe.Target, "PROBE_TARGET")
	overrideDuration(&c.Probe.Timeout, "PROBE_TIMEOUT")
	overrideDuration(&c.Probe.RequestTimeout, "PROBE_REQUEST_TIMEOUT")
	overrideInt(&c.Probe.Concurrency, "PROBE_CONCURRENCY")

	overrideString(&c.Login.BaseURL, "LOGIN_BASE_URL")
	overrideDuration(&c.Login.RequestTimeout, "LOGIN_REQUEST_TIMEOUT")
	overrideInt(&c.Login.Workers, "LOGIN_WORKERS")
	overrideString(&c.Login.SessionDir, "SESSION_DIR")

	overrideString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Log.JSON = b
		}
	}
}

func overrideString(target *string, envName string) {
	if v := os.Getenv(envName); v != "" {
		*target = v
	}
}

func overrideInt(target *int, envName string) {
	if v := os.Getenv(envName); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func overrideDuration(target *time.Duration, envName string) {
	if v := os.Getenv(envName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
