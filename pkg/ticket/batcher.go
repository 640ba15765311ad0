// Package ticket groups newly-discovered certificates into per-month batches
// and submits one creation request per batch to the external ticketing
// endpoint.
package ticket

import (
	"sort"
	"strconv"
	"time"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
	"github.com/Mindburn-Labs/certscan/pkg/expiry"
	"github.com/Mindburn-Labs/certscan/pkg/ledger"
)

// Batch holds the un-ledgered certificates of one policy expiring in one
// calendar month. One outbound request is issued per batch, never per
// certificate.
type Batch struct {
	Policy string
	Month  time.Month
	Year   int
	ByEnv  certs.EnvironmentContent
}

// Bucket returns the ledger bucket key this batch covers.
func (b Batch) Bucket() string {
	return expiry.MonthName(b.Month) + "/" + strconv.Itoa(b.Year)
}

// BuildBatches splits a policy's scanned content into per-month batches,
// dropping every serial already present in the ledger snapshot. The snapshot
// must be taken before the policy is recorded for the current run, so a
// certificate is ticketed at most once even when version passes overlap.
func BuildBatches(policy string, content certs.EnvironmentContent, recorded ledger.PolicyBuckets) []Batch {
	type monthKey struct {
		year  int
		month time.Month
	}
	grouped := make(map[monthKey]certs.EnvironmentContent)

	for environment, records := range content {
		for _, record := range records {
			bucket := expiry.Bucket(record.NotAfter)
			if recorded.Has(bucket, environment, record.Serial) {
				continue
			}
			key := monthKey{year: record.NotAfter.Year(), month: record.NotAfter.Month()}
			if grouped[key] == nil {
				grouped[key] = make(certs.EnvironmentContent)
			}
			grouped[key][environment] = append(grouped[key][environment], record)
		}
	}

	batches := make([]Batch, 0, len(grouped))
	for key, byEnv := range grouped {
		batches = append(batches, Batch{
			Policy: policy,
			Month:  key.month,
			Year:   key.year,
			ByEnv:  byEnv,
		})
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].Year != batches[j].Year {
			return batches[i].Year < batches[j].Year
		}
		return batches[i].Month < batches[j].Month
	})
	return batches
}
