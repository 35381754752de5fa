// Package exporter writes the canonical dataset artifacts a run produces.
//
// The Writer streams records into CSV with an optional UTF-8 BOM so the
// files open cleanly in Excel, and finalizes through a temp-file rename so
// re-running a window replaces the previous artifact atomically.
package exporter
