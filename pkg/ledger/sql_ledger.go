package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/expiry"
)

// SQLLedger implements Ledger using database/sql with SQLite. One row per
// recorded (policy, bucket, environment, serial) tuple; idempotency comes
// from the unique index plus an insert-or-ignore.
type SQLLedger struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notified_certs (
	policy TEXT NOT NULL,
	bucket TEXT NOT NULL,
	environment TEXT NOT NULL,
	serial TEXT NOT NULL,
	recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (policy, bucket, environment, serial)
);
`

// NewSQLLedger wraps an open database handle. Init must be called before use.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// Init creates the backing table if it does not exist.
func (s *SQLLedger) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("%w: init schema: %v", ErrLedgerIO, err)
	}
	return nil
}

// Policy returns the recorded buckets for one policy.
func (s *SQLLedger) Policy(ctx context.Context, policy string) (PolicyBuckets, error) {
	query := `SELECT bucket, environment, serial FROM notified_certs WHERE policy = $1 ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query, policy)
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

// Lookup reports whether the exact tuple was already recorded.
func (s *SQLLedger) Lookup(ctx context.Context, policy, bucket, environment, serial string) (bool, error) {
	query := `SELECT COUNT(1) FROM notified_certs WHERE policy = $1 AND bucket = $2 AND environment = $3 AND serial = $4`
	var count int
	if err := s.db.QueryRowContext(ctx, query, policy, bucket, environment, serial).Scan(&count); err != nil {
		return false, fmt.Errorf("%w: lookup: %v", ErrLedgerIO, err)
	}
	return count > 0, nil
}

// RecordPolicy inserts every scanned serial, ignoring duplicates.
func (s *SQLLedger) RecordPolicy(ctx context.Context, policy string, content certs.EnvironmentContent) error {
	tx, err := s.db.BeginTx(ctx, nil)
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

func (s *SQLLedger) Close() error {
	return s.db.Close()
}
