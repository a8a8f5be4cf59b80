package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the SeenStore interface on a single primary-keyed
// table. INSERT ON CONFLICT DO NOTHING gives the test-and-set property
// without explicit locking.
type PostgresStore struct {
	db        *sql.DB
	tableName string
	retention time.Duration
}

// NewPostgresStore initializes PostgreSQL-backed seen-event storage.
// connStr: connection string
// tablePrefix: table prefix (defaults to "gateway_") -> resulting table is
// prefix + "seen_events"
func NewPostgresStore(connStr, tablePrefix string, retention time.Duration) (*PostgresStore, error) {
	if tablePrefix == "" {
		tablePrefix = "gateway_"
	}
	if match, _ := regexp.MatchString("^[a-zA-Z0-9_]+$", tablePrefix); !match {
		return nil, fmt.Errorf("invalid table prefix: %s", tablePrefix)
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	store := &PostgresStore{
		db:        db,
		tableName: tablePrefix + "seen_events",
		retention: retention,
	}
	if err := store.initTable(); err != nil {
		return nil, err
	}
	return store, nil
}

// initTable automatically creates the seen-event table
func (p *PostgresStore) initTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		tx_hash VARCHAR(255) PRIMARY KEY,
		first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`, p.tableName)
	_, err := p.db.Exec(query)
	return err
}

func (p *PostgresStore) FirstSeen(ctx context.Context, hash string) (bool, error) {
	query := fmt.Sprintf(`
	INSERT INTO %s (tx_hash, first_seen)
	VALUES ($1, NOW())
	ON CONFLICT (tx_hash) DO NOTHING;
	`, p.tableName)

	res, err := p.db.ExecContext(ctx, query, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Sweep deletes records older than the retention window. Meant to run from a
// periodic loop; expiry bounds table growth, not correctness.
func (p *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE first_seen < $1", p.tableName)
	res, err := p.db.ExecContext(ctx, query, time.Now().Add(-p.retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
