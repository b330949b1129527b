// Package db opens the sqlite database that backs the embedding store.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
)

// FS holds the goose migrations.
//
//go:embed migrations/*.sql
var FS embed.FS

var (
	gooseOnce sync.Once
	gooseErr  error
)

func initGoose() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(FS)
		goose.SetLogger(goose.NopLogger())
		gooseErr = goose.SetDialect("sqlite3")
	})
	return gooseErr
}

// DSN returns the connection string for a database file.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

// Connect opens the database at path, creating parent directories, and
// applies pending migrations.
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	sqlDB, err := sql.Open(driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := initGoose(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configuring migrations: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return sqlDB, nil
}
