package crawler

import "github.com/JakeFAU/youread/internal/manga"

// Aggregate is the deduplicated record list of one run, in first-discovery order.
type Aggregate struct {
	records []manga.Record
	seen    map[string]struct{}
}

// NewAggregate returns an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{seen: make(map[string]struct{})}
}

// Merge appends records whose id has not been seen and returns how many were
// added. Records without an id or title are skipped.
func (a *Aggregate) Merge(records []manga.Record) int {
	added := 0
	for _, rec := range records {
		if rec.Validate() != nil {
			continue
		}
		if _, ok := a.seen[rec.ID]; ok {
			continue
		}
		a.seen[rec.ID] = struct{}{}
		a.records = append(a.records, rec)
		added++
	}
	return added
}

// Len returns the number of distinct records.
func (a *Aggregate) Len() int {
	return len(a.records)
}

// Records returns a copy of the aggregate.
func (a *Aggregate) Records() []manga.Record {
	out := make([]manga.Record, len(a.records))
	copy(out, a.records)
	return out
}
