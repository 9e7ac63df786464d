// Package reconcile merges freshly crawled records into the previously
// persisted set.
package reconcile

import (
	"github.com/valpere/listingsync/internal/table"
)

// DefaultAdmitCap is the number of new records admitted per run unless
// configured otherwise.
const DefaultAdmitCap = 10

// Result is the outcome of one merge.
type Result struct {
	// Records is the table body to write: admitted records first, then
	// every prior record in its original order.
	Records []table.Record

	Admitted []table.Record
	// Known counts fresh records whose key was already persisted.
	Known int
	// Dropped counts new records cut by the admit cap.
	Dropped int
	// Repeated counts fresh records whose key appeared earlier in the
	// same crawl.
	Repeated int
}

// Reconcile partitions fresh into new and already-known records by
// OriginalTitle, admits at most admitCap new records in crawl order and
// prepends them to prior. Prior records always win: a known fresh record
// never overwrites persisted fields. A negative cap admits nothing.
func Reconcile(fresh, prior []table.Record, admitCap int) Result {
	if admitCap < 0 {
		admitCap = 0
	}

	known := make(map[string]struct{}, len(prior))
	for _, rec := range prior {
		known[rec.Key()] = struct{}{}
	}

	var res Result
	newOnes := make([]table.Record, 0, len(fresh))
	seen := make(map[string]struct{}, len(fresh))
	for _, rec := range fresh {
		key := rec.Key()
		if _, ok := known[key]; ok {
			res.Known++
			continue
		}
		if _, ok := seen[key]; ok {
			res.Repeated++
			continue
		}
		seen[key] = struct{}{}
		newOnes = append(newOnes, rec)
	}

	if len(newOnes) > admitCap {
		res.Dropped = len(newOnes) - admitCap
		newOnes = newOnes[:admitCap]
	}
	res.Admitted = newOnes

	res.Records = make([]table.Record, 0, len(newOnes)+len(prior))
	res.Records = append(res.Records, newOnes...)
	res.Records = append(res.Records, prior...)
	return res
}
