package expiry

import (
	"fmt"
	"time"
)

// German month names as emitted into ledger buckets and ticket summaries.
// Existing ledger files are keyed on these; do not localize.
var monthNames = [12]string{
	"Januar", "Februar", "Maerz", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

// MonthName returns the bucket name for a month (1-12).
func MonthName(month time.Month) string {
	return monthNames[int(month)-1]
}

// Bucket renders the ledger bucket key for an expiry date: "<month>/<year>".
func Bucket(t time.Time) string {
	return fmt.Sprintf("%s/%d", MonthName(t.Month()), t.Year())
}
