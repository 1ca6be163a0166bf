// Package dedup suppresses duplicate records within a single job run.
//
// A Deduplicator wraps the fingerprint engine with a run-scoped seen-set:
// created at job start, discarded at job end, never persisted. Each job
// invocation owns exactly one instance; dedup state is never shared across
// domains or runs.
package dedup

import (
	"log/slog"
	"sync"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/fingerprint"
)

// Deduplicator tracks seen fingerprints to identify and skip duplicate
// records. The fingerprint algorithm is fixed at construction; fingerprints
// from different algorithms are never comparable, so a Deduplicator must not
// be reused across algorithm choices.
type Deduplicator struct {
	mu   sync.Mutex
	alg  fingerprint.Algorithm
	seen map[string]struct{}
}

// New creates a Deduplicator with an empty seen-set.
func New(alg fingerprint.Algorithm) *Deduplicator {
	slog.Debug("deduplicator initialized", "hash_algorithm", alg.String())
	return &Deduplicator{
		alg:  alg,
		seen: make(map[string]struct{}),
	}
}

// Fingerprint computes the content fingerprint of a record under the
// configured algorithm. Never fails: unserializable values degrade to a
// fallback stringification.
func (d *Deduplicator) Fingerprint(record etl.Record) string {
	return fingerprint.WholeRecord(record, d.alg)
}

// IsDuplicate reports whether a record with identical content has been seen
// before. Does not mutate state. Note that a separate IsDuplicate+MarkSeen
// sequence is a non-atomic check-then-act; pipelines needing exactly-once
// semantics within a run must use ProcessRecord instead.
func (d *Deduplicator) IsDuplicate(record etl.Record) bool {
	fp := d.Fingerprint(record)
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[fp]
	return ok
}

// MarkSeen records the fingerprint of a record and returns it. Idempotent:
// marking an already-seen record is a no-op.
func (d *Deduplicator) MarkSeen(record etl.Record) string {
	fp := d.Fingerprint(record)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[fp] = struct{}{}
	return fp
}

// ProcessRecord atomically checks whether the record is new and marks it
// seen. This is the only primitive safe for concurrent use.
func (d *Deduplicator) ProcessRecord(record etl.Record) (isNew bool, fp string) {
	fp = d.Fingerprint(record)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fp]; ok {
		return false, fp
	}
	d.seen[fp] = struct{}{}
	return true, fp
}

// Batch filters records to first occurrences only, preserving input order.
// Later duplicates within the same batch are dropped.
func (d *Deduplicator) Batch(records []etl.Record) []etl.Record {
	unique := make([]etl.Record, 0, len(records))
	duplicates := 0

	for _, record := range records {
		isNew, _ := d.ProcessRecord(record)
		if isNew {
			unique = append(unique, record)
		} else {
			duplicates++
		}
	}

	if duplicates > 0 {
		slog.Info("batch deduplication complete",
			"total", len(records),
			"unique", len(unique),
			"duplicates", duplicates,
		)
	}

	return unique
}

// SeenCount returns the number of unique records seen so far.
func (d *Deduplicator) SeenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Clear discards all seen fingerprints.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
}
