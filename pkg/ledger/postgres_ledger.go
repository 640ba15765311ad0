package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/expiry"
)

// PostgresLedger is a durable Postgres-backed implementation of Ledger for
// installations that already run a shared database. Unlike FileLedger it is
// safe for concurrent writers; the unique constraint carries idempotency.
type PostgresLedger struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS notified_certs (
	policy TEXT NOT NULL,
	bucket TEXT NOT NULL,
	environment TEXT NOT NULL,
	serial TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (policy, bucket, environment, serial)
);
`

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (p *PostgresLedger) Init(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("%w: init schema: %v", ErrLedgerIO, err)
	}
	return nil
}

func (p *PostgresLedger) Policy(ctx context.Context, policy string) (PolicyBuckets, error) {
	query := `SELECT bucket, environment, serial FROM notified_certs WHERE policy = $1 ORDER BY recorded_at`
	rows, err := p.db.QueryContext(ctx, query, policy)
	if err != nil {
		return nil, fmt.Errorf("%w: query policy %s: %v", ErrLedgerIO, policy, err)
	}
	defer rows.Close()

	snapshot := make(PolicyBuckets)
	for rows.Next() {
		var bucket, environment, serial string
		if err := rows.Scan(&bucket, &environment, &serial); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrLedgerIO, err)
		}
		snapshot.add(bucket, environment, serial)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %v", ErrLedgerIO, err)
	}
	return snapshot, nil
}

func (p *PostgresLedger) Lookup(ctx context.Context, policy, bucket, environment, serial string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM notified_certs WHERE policy = $1 AND bucket = $2 AND environment = $3 AND serial = $4
	)`
	var present bool
	if err := p.db.QueryRowContext(ctx, query, policy, bucket, environment, serial).Scan(&present); err != nil {
		return false, fmt.Errorf("%w: lookup: %v", ErrLedgerIO, err)
	}
	return present, nil
}

func (p *PostgresLedger) RecordPolicy(ctx context.Context, policy string, content certs.EnvironmentContent) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrLedgerIO, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO notified_certs (policy, bucket, environment, serial)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (policy, bucket, environment, serial) DO NOTHING
	`
	for environment, records := range content {
		for _, record := range records {
			bucket := expiry.Bucket(record.NotAfter)
			if _, err := tx.ExecContext(ctx, query, policy, bucket, environment, record.Serial); err != nil {
				return fmt.Errorf("%w: insert %s/%s/%s: %v", ErrLedgerIO, policy, environment, record.Serial, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrLedgerIO, err)
	}
	return nil
}

func (p *PostgresLedger) Close() error {
	return p.db.Close()
}
