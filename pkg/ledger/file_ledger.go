package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
)

// FileLedger implements Ledger using a local JSON file (for simple
// durability). The file is loaded in full, merged in memory and rewritten in
// full; a crash mid-run loses at most the current policy's updates.
//
// Concurrent processes sharing one file are unsafe; runs must be serialized
// externally.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger creates a file-backed ledger. A missing file is an empty
// ledger; an existing file must hold valid, schema-conforming JSON.
func NewFileLedger(path string) (*FileLedger, error) {
	fl := &FileLedger{path: path}
	if _, err := fl.load(); err != nil {
		return nil, err
	}
	return fl, nil
}

func (f *FileLedger) load() (map[string]PolicyBuckets, error) {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return make(map[string]PolicyBuckets), nil
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrLedgerIO, f.path, err)
	}
	if err := validateAtRest(raw); err != nil {
		return nil, err
	}

	data := make(map[string]PolicyBuckets)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrLedgerIO, f.path, err)
	}
	return data, nil
}

func (f *FileLedger) save(data map[string]PolicyBuckets) error {
	raw, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrLedgerIO, err)
	}
	if err := os.WriteFile(f.path, raw, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrLedgerIO, f.path, err)
	}
	return nil
}

// Policy returns a deep copy of one policy's buckets.
func (f *FileLedger) Policy(ctx context.Context, policy string) (PolicyBuckets, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}

	snapshot := make(PolicyBuckets)
	for bucket, envs := range data[policy] {
		snapshot[bucket] = make(map[string][]string, len(envs))
		for env, serials := range envs {
			snapshot[bucket][env] = append([]string(nil), serials...)
		}
	}
	return snapshot, nil
}

// Lookup reports whether the exact tuple was already recorded.
func (f *FileLedger) Lookup(ctx context.Context, policy, bucket, environment, serial string) (bool, error) {
	snapshot, err := f.Policy(ctx, policy)
	if err != nil {
		return false, err
	}
	return snapshot.Has(bucket, environment, serial), nil
}

// RecordPolicy loads the full ledger, merges the policy's scanned content and
// rewrites the file. Serials already present are left untouched.
func (f *FileLedger) RecordPolicy(ctx context.Context, policy string, content certs.EnvironmentContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}

	buckets, ok := data[policy]
	if !ok {
		buckets = make(PolicyBuckets)
	}
	mergeContent(buckets, content)
	if len(buckets) > 0 {
		data[policy] = buckets
	}

	return f.save(data)
}

func (f *FileLedger) Close() error { return nil }
