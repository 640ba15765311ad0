// Package ledger persists which certificates have already been notified, so
// repeated runs do not raise duplicate tickets. Entries are keyed by policy,
// expiry bucket ("<month>/<year>") and environment, holding the set of serial
// numbers already handled.
package ledger

import (
	"context"
	"errors"
	"slices"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/expiry"
)

// ErrLedgerIO is returned when the ledger store cannot be read or written.
var ErrLedgerIO = errors.New("ledger: store unreadable or unwritable")

// PolicyBuckets is one policy's slice of the ledger:
// bucket ("<month>/<year>") -> environment -> serial numbers.
type PolicyBuckets map[string]map[string][]string

// Has reports whether a serial is recorded under the given bucket and
// environment.
func (p PolicyBuckets) Has(bucket, environment, serial string) bool {
	envs, ok := p[bucket]
	if !ok {
		return false
	}
	return slices.Contains(envs[environment], serial)
}

// add inserts a serial idempotently and reports whether it was new.
func (p PolicyBuckets) add(bucket, environment, serial string) bool {
	envs, ok := p[bucket]
	if !ok {
		envs = make(map[string][]string)
		p[bucket] = envs
	}
	if slices.Contains(envs[environment], serial) {
		return false
	}
	envs[environment] = append(envs[environment], serial)
	return true
}

// Ledger is the notification dedup store. Presence of a serial means
// "already notified, do not re-ticket".
type Ledger interface {
	// Policy returns a snapshot of one policy's buckets. A policy with no
	// history yields an empty, non-nil snapshot.
	Policy(ctx context.Context, policy string) (PolicyBuckets, error)

	// Lookup reports whether the exact tuple was already recorded.
	Lookup(ctx context.Context, policy, bucket, environment, serial string) (bool, error)

	// RecordPolicy merges one policy's scanned content into the store.
	// Recording an already-present serial is a no-op, never a duplicate.
	RecordPolicy(ctx context.Context, policy string, content certs.EnvironmentContent) error

	Close() error
}

// mergeContent folds scanned environment content into a policy snapshot,
// bucketing each record by its expiry month. Returns the number of serials
// that were actually new.
func mergeContent(buckets PolicyBuckets, content certs.EnvironmentContent) int {
	added := 0
	for environment, records := range content {
		for _, record := range records {
			if buckets.add(expiry.Bucket(record.NotAfter), environment, record.Serial) {
				added++
			}
		}
	}
	return added
}
