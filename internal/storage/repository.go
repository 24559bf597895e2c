package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"perp-basis-alerts/internal/dedup"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	recordsTable = "alert_records"

	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS alert_records (
        token      TEXT PRIMARY KEY,
        position   INTEGER NOT NULL,
        alerted_at BIGINT NOT NULL,
        message    TEXT NOT NULL
    );`

	listRecordsSQL = `SELECT token, alerted_at, message
    FROM alert_records
    ORDER BY position, token;`

	deleteRecordsSQL = `DELETE FROM alert_records;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

var recordColumns = []string{"token", "position", "alerted_at", "message"}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Postgres keeps alert records in the alert_records table. Save replaces the
// table contents inside one transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a record backend.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Postgres) Name() string { return "postgres:" + recordsTable }

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// EnsureSchema creates the records table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, ensureSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load reads every record in insertion order.
func (p *Postgres) Load(ctx context.Context) ([]dedup.Record, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecordsSQL)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := make([]dedup.Record, 0)
	for rows.Next() {
		var rec dedup.Record
		if err := rows.Scan(&rec.Token, &rec.Timestamp, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// Save overwrites the table with records.
func (p *Postgres) Save(ctx context.Context, records []dedup.Record) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteRecordsSQL); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	if len(records) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{recordsTable}, recordColumns, pgx.CopyFromRows(recordRows(records))); err != nil {
			return fmt.Errorf("copy records: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (p *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session drops the lock when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// recordRows lays records out as COPY rows, deduplicating tokens so the
// primary key never rejects a batch.
func recordRows(records []dedup.Record) [][]any {
	rows := make([][]any, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.Token]; dup || rec.Token == "" {
			continue
		}
		seen[rec.Token] = struct{}{}
		rows = append(rows, []any{rec.Token, int32(len(rows)), rec.Timestamp, rec.Message})
	}
	return rows
}

var (
	_ dedup.Backend  = (*Postgres)(nil)
	_ AdvisoryLocker = (*Postgres)(nil)
)
