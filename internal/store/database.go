package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pressly/goose/v3"

	"github.com/teemow/slotkeeper/internal/config"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

// DB is a database connection with migration support.
type DB struct {
	*sql.DB
	driver   string
	mu       sync.Mutex
	migrated bool
}

// Open connects to the database described by cfg.
func Open(cfg config.Database) (*DB, error) {
	var driver, dsn string

	switch cfg.Driver {
	case config.DriverPostgres:
		driver = "postgres"
		dsn = cfg.DSN
	case config.DriverSQLite, "":
		driver = "sqlite3"
		dsn = sqliteDSN(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, driver: driver}, nil
}

// sqliteDSN turns a file path into a DSN that starts write transactions
// with BEGIN IMMEDIATE and waits on a busy database instead of failing.
func sqliteDSN(path string) string {
	if path == "" {
		path = "slotkeeper.db"
	}
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + params.Encode()
}

// Driver returns the database/sql driver name.
func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) dialect() string {
	if d.driver == "sqlite3" {
		return "sqlite3"
	}
	return "postgres"
}

func (d *DB) migrationsDir() string {
	if d.driver == "sqlite3" {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}

// withGoose configures goose for this database and runs fn.
func (d *DB) withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(d.dialect()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn()
}

// Migrate runs all pending migrations.
func (d *DB) Migrate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.migrated {
		return nil
	}

	err := d.withGoose(func() error {
		return goose.UpContext(ctx, d.DB, d.migrationsDir())
	})
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.migrated = true
	return nil
}

// MigrateDown rolls back the most recent migration.
func (d *DB) MigrateDown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.withGoose(func() error {
		return goose.DownContext(ctx, d.DB, d.migrationsDir())
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	d.migrated = false
	return nil
}

// Version returns the current schema version.
func (d *DB) Version(ctx context.Context) (int64, error) {
	var version int64
	err := d.withGoose(func() error {
		v, err := goose.GetDBVersionContext(ctx, d.DB)
		version = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
