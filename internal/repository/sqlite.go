package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteSlot struct {
	db *sql.DB
}

// NewSQLiteSlot opens the database file at dbPath and brings its schema up to
// date.
func NewSQLiteSlot(dbPath string) (*SQLiteSlot, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under concurrent saves
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteSlot{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSlot) runMigrations() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (s *SQLiteSlot) Read(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM slots WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return blob, nil
}

func (s *SQLiteSlot) Write(ctx context.Context, key string, blob []byte) error {
	query := `
		INSERT INTO slots (key, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, blob, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSlot) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete slot %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteSlot) Close() error {
	return s.db.Close()
}
