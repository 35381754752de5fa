// Package transform implements the record transformation pipeline: schema
// projection, type coercion, row filtering, validation, and composite-key
// deduplication.
//
// Per-record work (mapping, coercion, validation) is independent across
// records and runs on a bounded worker pool; each worker accumulates issues
// and per-column tallies locally and the partials are merged at the
// deduplication synchronization point, so no shared counter is contended
// while records are in flight.
//
// Nothing in this package fails a batch for a bad value: coercion degrades
// the one cell to missing and tallies it, validation flags the row, and the
// quality report carries the evidence.
package transform
