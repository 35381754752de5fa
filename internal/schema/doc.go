// Package schema defines the canonical field-spec table and the schema mapper.
//
// The field-spec table is the schema contract: 23 canonical headers, each with
// its raw source column, declared kind, required flag, and optional range rule.
// It is immutable configuration, loaded once per run and shared read-only
// across all records. Adding a column is a configuration change, not code.
//
// The Mapper projects raw source rows onto the canonical header set, detecting
// per-cell presence and, across a batch, which canonical columns were never
// backed by a source column at all (structurally absent). Those are reported
// at a different severity than columns that are merely null in some rows.
package schema
