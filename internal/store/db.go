package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend     string // memory, sqlite or postgres
	DatabaseURL string
	SQLitePath  string
}

// Open connects the configured backend and ensures its schema exists.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		db, err := NewSQLiteDB(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(ctx, db, SQLite)
	case "postgres":
		db, err := NewDB(opts.DatabaseURL)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, err
		}
		return NewSQLStore(ctx, db, Postgres)
	}
	return nil, errors.Errorf("unknown document store backend %q", opts.Backend)
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return db, errors.Wrap(err, "pinging postgres")
	}
	return db, nil
}

// NewSQLiteDB opens a SQLite file whose write transactions start with BEGIN IMMEDIATE.
func NewSQLiteDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating sqlite dir")
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging sqlite")
	}
	return db, nil
}
