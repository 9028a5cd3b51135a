// Package database centralises sqlx connection helpers.  DATABASE_URL keeps
// the SQLAlchemy-style scheme operators already use; DriverDSN maps it to a
// Go driver:
//
//	postgresql://…            → lib/pq      "postgres"
//	postgresql+psycopg2://…   → lib/pq      "postgres"
//	sqlite://                 → go-sqlite3  ":memory:"
//	sqlite:///rel.db          → go-sqlite3  "rel.db"
//	sqlite:////abs/app.db     → go-sqlite3  "/abs/app.db"
//
// Public entry points:
//
//	Open(ctx, url, opts, log)  – open, size the pool, pre-ping.
//	Wrap(ctx, db, opts, log)   – same, for an already-open *sqlx.DB.
//
// Both helpers Ping the database (when PoolPrePing is set) before returning
// so callers can fail fast during bootstrap.  Callers should Close() the
// returned *DB when no longer needed.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

// DB is a pooled handle.  When Echo is on, statements issued through the
// context-aware helpers are logged at DEBUG.
type DB struct {
	*sqlx.DB
	echo bool
	log  *zap.SugaredLogger
}

// DriverDSN translates a DATABASE_URL into a driver name and DSN.
func DriverDSN(rawURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(rawURL, "postgresql+psycopg2://"):
		return "postgres", "postgresql://" + strings.TrimPrefix(rawURL, "postgresql+psycopg2://"), nil
	case strings.HasPrefix(rawURL, "postgresql://"):
		return "postgres", rawURL, nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		path := strings.TrimPrefix(rawURL, "sqlite://")
		if path == "" || path == "/" || path == "/:memory:" {
			return "sqlite3", ":memory:", nil
		}
		// One leading slash separates host from path; the rest is the path.
		return "sqlite3", strings.TrimPrefix(path, "/"), nil
	}
	return "", "", fmt.Errorf("database: unsupported URL scheme in %q", redactScheme(rawURL))
}

func redactScheme(rawURL string) string {
	scheme, _, _ := strings.Cut(rawURL, "://")
	return scheme + "://…"
}

// Open connects using the settings URL and pool view.
func Open(ctx context.Context, rawURL string, o config.DatabaseOptions, log *zap.SugaredLogger) (*DB, error) {
	driver, dsn, err := DriverDSN(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if driver == "sqlite3" && dsn == ":memory:" {
		// Each new connection to :memory: is a fresh database.
		o.PoolSize, o.MaxOverflow = 1, 0
	}
	return Wrap(ctx, db, o, log)
}

// Wrap sizes the pool on db and pre-pings it.  The pool allows PoolSize
// idle connections and PoolSize+MaxOverflow open ones.  On ping failure db
// is closed.
func Wrap(ctx context.Context, db *sqlx.DB, o config.DatabaseOptions, log *zap.SugaredLogger) (*DB, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	maxOpen := o.PoolSize + o.MaxOverflow
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	db.SetMaxIdleConns(o.PoolSize)
	db.SetConnMaxLifetime(o.PoolRecycle)

	if o.PoolPrePing {
		pctx := ctx
		if o.PoolTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, o.PoolTimeout)
			defer cancel()
		}
		if err := db.PingContext(pctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("database: ping: %w", err)
		}
	}

	log.Infow("database online",
		"driver", db.DriverName(),
		"max_open", maxOpen,
		"max_idle", o.PoolSize,
		"recycle", o.PoolRecycle,
		"echo", o.Echo,
	)
	return &DB{DB: db, echo: o.Echo, log: log}, nil
}

// Health pings the pool.  Used by the health endpoint.
func (d *DB) Health(ctx context.Context) error {
	return d.PingContext(ctx)
}

// PoolStatus summarises sql.DBStats for logs and health output.
func (d *DB) PoolStatus() map[string]int {
	st := d.Stats()
	return map[string]int{
		"max_open": st.MaxOpenConnections,
		"open":     st.OpenConnections,
		"in_use":   st.InUse,
		"idle":     st.Idle,
	}
}

func (d *DB) logStatement(query string, args []any) {
	if d.echo {
		d.log.Debugw("sql", "query", query, "args", args)
	}
}

// ExecContext logs the statement when Echo is on.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.logStatement(query, args)
	return d.DB.ExecContext(ctx, query, args...)
}

// QueryxContext logs the statement when Echo is on.
func (d *DB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	d.logStatement(query, args)
	return d.DB.QueryxContext(ctx, query, args...)
}

// GetContext logs the statement when Echo is on.
func (d *DB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	d.logStatement(query, args)
	return d.DB.GetContext(ctx, dest, query, args...)
}

// SelectContext logs the statement when Echo is on.
func (d *DB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	d.logStatement(query, args)
	return d.DB.SelectContext(ctx, dest, query, args...)
}
