package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// TargetConfig describes the database queries run against.
type TargetConfig struct {
	// Dialect is mysql, postgres (or pgx), sqlite3 (or sqlite) or duckdb.
	Dialect      string
	DSN          string
	MaxOpenConns int
}

// DriverName maps a dialect to its registered database/sql driver.
func DriverName(dialect string) (string, error) {
	switch strings.ToLower(dialect) {
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	case "sqlite3", "sqlite":
		return "sqlite3", nil
	case "duckdb":
		return "duckdb", nil
	default:
		return "", fmt.Errorf("unsupported database dialect %q", dialect)
	}
}

// OpenTarget opens a connection pool to the target database and verifies it
// is reachable.
func OpenTarget(ctx context.Context, cfg TargetConfig) (*sql.DB, error) {
	driver, err := DriverName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" && driver != "duckdb" {
		return nil, fmt.Errorf("database DSN is required for %s", driver)
	}

	db, err := openPool(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 8
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// openPool opens driver with the settings that keep one query string to one
// statement: pgx never uses the simple protocol, MySQL never allows multi
// statements, and file-backed DuckDB databases are opened read-only.
func openPool(driver, dsn string) (*sql.DB, error) {
	if driver == "pgx" {
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, err
		}
		if cfg.DefaultQueryExecMode == pgx.QueryExecModeSimpleProtocol {
			cfg.DefaultQueryExecMode = pgx.QueryExecModeExec
		}
		return stdlib.OpenDB(*cfg), nil
	}
	dsn, err := targetDSN(driver, dsn)
	if err != nil {
		return nil, err
	}
	return sql.Open(driver, dsn)
}

// targetDSN rewrites dsn for the mysql and duckdb drivers.
func targetDSN(driver, dsn string) (string, error) {
	switch driver {
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", err
		}
		cfg.MultiStatements = false
		return cfg.FormatDSN(), nil
	case "duckdb":
		return readOnlyDuckDB(dsn)
	default:
		return dsn, nil
	}
}

// readOnlyDuckDB forces access_mode=READ_ONLY on a file-backed DuckDB DSN.
// In-memory databases cannot be opened read-only and are returned unchanged.
func readOnlyDuckDB(dsn string) (string, error) {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	if path == "" || path == ":memory:" {
		return dsn, nil
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse duckdb options: %w", err)
	}
	for k := range q {
		if strings.EqualFold(k, "access_mode") {
			q.Del(k)
		}
	}
	q.Set("access_mode", "READ_ONLY")
	return path + "?" + q.Encode(), nil
}
