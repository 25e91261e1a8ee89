package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"agente-digital/config"
	"agente-digital/core/utils"
)

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// NewDB opens the configured database and verifies connectivity with a
// fixed retry count and sleep-based backoff. Drivers: postgres (pgx) or
// sqlite (modernc).
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver, dsn := resolveDriver(cfg)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	retries := cfg.Incidentes.ConnectRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := time.Duration(cfg.Incidentes.ConnectBackoffS) * time.Second
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	var pingErr error
	for attempt := 1; attempt <= retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			return db, nil
		}
		logger.Warnf("db ping attempt %d/%d failed: %v", attempt, retries, pingErr)
		if attempt < retries {
			time.Sleep(backoff)
		}
	}
	db.Close()
	return nil, fmt.Errorf("db unreachable after %d attempts: %w", retries, pingErr)
}

func resolveDriver(cfg *config.AppConfig) (driver, dsn string) {
	if cfg.DBDriver == "sqlite" || (cfg.DBPath != "" && cfg.DBDriver == "") {
		path := cfg.DBPath
		if path == "" {
			path = "data/agente.db"
		}
		return "sqlite", path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}
	return "pgx", cfg.DBURL
}

// ApplyMigrations runs the embedded goose migrations for the configured
// driver.
func ApplyMigrations(ctx context.Context, db *sql.DB, cfg *config.AppConfig, logger *utils.Logger) error {
	dialect, dir := "postgres", "migrations/postgres"
	if d, _ := resolveDriver(cfg); d == "sqlite" {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	logger.Printf("migrations applied (%s)", dialect)
	return nil
}
