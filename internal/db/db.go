package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "github.com/sykell/igprovision/internal/logger"
)

// InitDB opens the configured database, tunes the pool and runs migrations.
func InitDB(config *Config) (*gorm.DB, error) {
	if config == nil {
		config = NewConfig()
	}

	dialector, err := dialectorFor(config)
	if err != nil {
		return nil, err
	}

	// Route GORM logs through zerolog
	zl := applog.WithComponent("gorm")
	gormLogger := logger.New(
		&zl,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen := config.MaxOpen
	if config.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection also keeps :memory: databases coherent.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(config.MaxIdle)
	sqlDB.SetConnMaxLifetime(config.Timeout)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func dialectorFor(config *Config) (gorm.Dialector, error) {
	switch config.Driver {
	case DriverMySQL, "":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
			config.User, config.Password, config.Host, config.Port, config.Database)
		return mysql.Open(dsn), nil
	case DriverSQLite:
		dsn := config.Path
		if dsn == "" {
			return nil, fmt.Errorf("sqlite driver requires a database path")
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return sqlite.Open(dsn + sep + "_pragma=foreign_keys(1)"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}
