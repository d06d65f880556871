package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConnected is returned by every operation on a nil Database.
var ErrNotConnected = errors.New("database is not initialized")

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Database wraps a pgx connection pool holding inventory snapshots.
type Database struct {
	cfg  Config
	pool *pgxpool.Pool
}

// DSN renders the configuration as a postgres URL.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// Connect opens a pool, pings it and makes sure the snapshots table exists.
func Connect(ctx context.Context, cfg Config) (*Database, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	database := &Database{cfg: cfg, pool: pool}
	if err := database.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := database.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return database, nil
}

// DSN returns the connection string the pool was opened with.
func (d *Database) DSN() string {
	return d.cfg.DSN()
}

// Ping checks the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	if d == nil || d.pool == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.pool.Ping(ctx)
}

// Close releases the pool. It is safe on a nil Database.
func (d *Database) Close() {
	if d == nil || d.pool == nil {
		return
	}
	d.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id       BIGSERIAL PRIMARY KEY,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	payload  JSONB NOT NULL
)`

func (d *Database) ensureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

// SaveSnapshot stores payload as the newest snapshot and prunes all but the
// latest retention rows. A non-positive retention keeps every row.
func (d *Database) SaveSnapshot(ctx context.Context, payload []byte, retention int) error {
	if d == nil || d.pool == nil {
		return ErrNotConnected
	}
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO snapshots (payload) VALUES ($1)`, payload); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if retention <= 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
DELETE FROM snapshots
WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT $1)`, retention)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		return nil
	})
}

// LatestSnapshot returns the newest payload. The boolean is false when the
// table is empty.
func (d *Database) LatestSnapshot(ctx context.Context) ([]byte, bool, error) {
	if d == nil || d.pool == nil {
		return nil, false, ErrNotConnected
	}
	var payload []byte
	err := d.pool.QueryRow(ctx, `SELECT payload FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	return payload, true, nil
}
