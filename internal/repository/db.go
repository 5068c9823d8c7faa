package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quernlabs/quern/internal/config"
	"github.com/quernlabs/quern/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection based on configuration and runs migrations.
// Parameters:
//   - cfg: database configuration including driver and connection settings.
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Translate driver-specific duplicate-key errors into
		// gorm.ErrDuplicatedKey so callers can map them to conflicts.
		TranslateError: true,
	}

	var db *gorm.DB
	var err error

	switch cfg.Type {
	case "postgres":
		db, err = initPostgres(cfg, gormConfig)
	case "sqlite", "":
		db, err = initSQLite(cfg, gormConfig)
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}

	if err != nil {
		return nil, err
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs schema migrations for all pipeline models. Split out of
// InitDB so tests can migrate an in-memory database directly.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Job{},
		&domain.QueryEngine{},
		&domain.Document{},
		&domain.Chunk{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Reserve an engine name while a build for it is in flight: at most one
	// non-terminal job may hold a given (owner, name) pair. Expressed as raw
	// SQL because GORM index tags cannot carry this predicate; the statement
	// is valid on both SQLite and PostgreSQL.
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_live_engine_name
		 ON jobs(owner_id, engine_name)
		 WHERE status IN ('pending','active')`,
	).Error; err != nil {
		return fmt.Errorf("failed to create live-job name index: %w", err)
	}

	return nil
}

// initPostgres initializes a PostgreSQL database connection using the configured DSN
func initPostgres(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	// PreferSimpleProtocol disables implicit prepared statements, which are
	// incompatible with transaction poolers (e.g. Supabase port 6543).
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

// initSQLite initializes a SQLite database connection
func initSQLite(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	// Ensure the directory exists
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	// Enable WAL mode for better concurrency (SQLite specific)
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")

	return db, nil
}
