package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// DB wraps the SQLite handle with busy-retry helpers.
type DB struct {
	*sql.DB
	path string
}

// Path returns the on-disk location of the database.
func (d *DB) Path() string {
	return d.path
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// ensures the schema is current.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	// Pragmas in the DSN apply to every connection the pool opens.
	query := url.Values{}
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout(5000)")
	dsn := "file:" + path + "?" + query.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	wrapped := &DB{DB: db, path: path}
	if err := wrapped.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return wrapped, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// RetryOnBusy re-runs op with exponential backoff while SQLite reports the
// database as busy.
func RetryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// ExecAffected runs a statement with busy retry and returns the affected row count.
func (d *DB) ExecAffected(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := RetryOnBusy(ctx, func() error {
		res, err := d.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// Tx runs fn inside a transaction, retrying the whole transaction on busy.
func (d *DB) Tx(ctx context.Context, fn func(*sql.Tx) error) error {
	return RetryOnBusy(ctx, func() error {
		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Health reports basic diagnostics for the SQLite file.
type Health struct {
	Driver         string
	Location       string
	Readable       bool
	SchemaVersion  int
	IntegrityCheck bool
	Error          string
}

// Ready reports whether the store is usable.
func (h Health) Ready() bool {
	return h.Readable && h.IntegrityCheck && h.Error == ""
}

// Detail describes why the store is not ready.
func (h Health) Detail() string {
	switch {
	case h.Error != "":
		return h.Error
	case !h.Readable:
		return h.Driver + " store unreachable"
	case !h.IntegrityCheck:
		return h.Driver + " integrity check failed"
	}
	return ""
}

// CheckHealth pings the database, reads the schema version, and runs an
// integrity check.
func (d *DB) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{Driver: "sqlite", Location: d.path}
	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.Readable = true

	if err := d.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var integrity string
	if err := d.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
