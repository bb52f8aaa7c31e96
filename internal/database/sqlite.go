package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteDB is the handle of the on-device capsule cache. Writes go through a
// single connection so concurrent writers queue instead of failing with
// "database is locked"; reads use a small pool.
type SQLiteDB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewSQLiteDB opens the cache file at path with WAL journaling.
func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)

	writer, err := openSQLite(ctx, dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	reader, err := openSQLite(ctx, dsn, 4)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &SQLiteDB{Writer: writer, Reader: reader}, nil
}

// NewInMemorySQLiteDB opens a private in-memory cache named name. Reader and
// writer share one connection because shared-cache table locks are not covered
// by busy_timeout.
func NewInMemorySQLiteDB(ctx context.Context, name string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
		url.PathEscape(name),
	)

	db, err := openSQLite(ctx, dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("open in-memory cache: %w", err)
	}

	return &SQLiteDB{Writer: db, Reader: db}, nil
}

func openSQLite(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	// An in-memory database lives only as long as one of its connections.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or upgrades the cache schema. It is idempotent.
func (db *SQLiteDB) Migrate() error {
	source, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("create sqlite migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.Writer, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create sqlite migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}

	return nil
}

// Close closes both connections and returns the first error.
func (db *SQLiteDB) Close() error {
	var firstErr error

	if db.Reader != db.Writer {
		if err := db.Reader.Close(); err != nil {
			firstErr = fmt.Errorf("close reader: %w", err)
		}
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
