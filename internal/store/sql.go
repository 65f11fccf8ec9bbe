package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// SQLStore keeps entries in a single kv_store table. It runs on SQLite
// (modernc, pure Go) or PostgreSQL (pgx stdlib).
type SQLStore struct {
	db     *sql.DB
	driver string
	clock  clockwork.Clock

	readQuery  string
	writeQuery string
}

const createTable = `CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`

// OpenSQL opens the database, applies connection settings for the driver and
// creates the table when missing. Writes stamp updated_at from clock.
func OpenSQL(ctx context.Context, driver, dsn string, clock clockwork.Clock, logger *slog.Logger) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("store: empty DSN")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY under
		// concurrent refresh streams.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		tuneSQLite(ctx, db, logger)
	}

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv_store table: %w", err)
	}

	s := &SQLStore{db: db, driver: driver, clock: clock}
	s.readQuery = fmt.Sprintf(`SELECT value FROM kv_store WHERE key = %s`, s.placeholder(1))
	s.writeQuery = fmt.Sprintf(`INSERT INTO kv_store (key, value, updated_at) VALUES (%s, %s, %s)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3))

	logger.Info("kv store opened", "driver", driver)
	return s, nil
}

func tuneSQLite(ctx context.Context, db *sql.DB, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		logger.Warn("sqlite journal_mode not applied", "error", err)
	}
	for _, pragma := range []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.Warn("sqlite pragma not applied", "pragma", pragma, "error", err)
		}
	}
}

// placeholder returns the driver's bind parameter for position n (1-based).
func (s *SQLStore) placeholder(n int) string {
	if s.driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.readQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Write(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.writeQuery, key, value, s.clock.Now().UnixMilli()); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
