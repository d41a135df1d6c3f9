package db

import (
	"os"
	"strconv"
	"time"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds database configuration
type Config struct {
	Driver   string `ini:"driver" validate:"oneof=mysql sqlite"`
	Host     string `ini:"host"`
	Port     string `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	Database string `ini:"database"`
	// Path is the database file when Driver is sqlite. ":memory:" is accepted.
	Path    string        `ini:"path"`
	MaxOpen int           `ini:"max_open" validate:"min=1"`
	MaxIdle int           `ini:"max_idle" validate:"min=0"`
	Timeout time.Duration `ini:"conn_max_lifetime"`
}

// NewConfig creates a new database configuration from environment variables
func NewConfig() *Config {
	return &Config{
		Driver:   getEnvOrDefault("DB_DRIVER", DriverMySQL),
		Host:     getEnvOrDefault("MYSQL_HOST", "localhost"),
		Port:     getEnvOrDefault("MYSQL_PORT", "3306"),
		User:     getEnvOrDefault("MYSQL_USER", "root"),
		Password: getEnvOrDefault("MYSQL_PASSWORD", ""),
		Database: getEnvOrDefault("MYSQL_DATABASE", "igprovision"),
		Path:     getEnvOrDefault("SQLITE_PATH", "igprovision.db"),
		MaxOpen:  getEnvIntOrDefault("DB_MAX_OPEN", 25),
		MaxIdle:  getEnvIntOrDefault("DB_MAX_IDLE", 5),
		Timeout:  30 * time.Minute,
	}
}

// ApplyEnv overrides fields that are explicitly set in the environment.
func (c *Config) ApplyEnv() {
	overrideString(&c.Driver, "DB_DRIVER")
	overrideString(&c.Host, "MYSQL_HOST")
	overrideString(&c.Port, "MYSQL_PORT")
	overrideString(&c.User, "MYSQL_USER")
	overrideString(&c.Password, "MYSQL_PASSWORD")
	overrideString(&c.Database, "MYSQL_DATABASE")
	overrideString(&c.Path, "SQLITE_PATH")
	if v := os.Getenv("DB_MAX_OPEN"); v != "" {
		c.MaxOpen = getEnvIntOrDefault("DB_MAX_OPEN", c.MaxOpen)
	}
	if v := os.Getenv("DB_MAX_IDLE"); v != "" {
		c.MaxIdle = getEnvIntOrDefault("DB_MAX_IDLE", c.MaxIdle)
	}
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func overrideString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}
