// Package quality computes per-column statistics over the final canonical
// dataset and assembles the run's quality report.
//
// The profiler is pure aggregation: it never mutates records. It combines
// column profiles (null rates, coercion-failure rates, distinct counts,
// numeric and text summaries) with every issue accumulated upstream into one
// report, ordered by severity descending then column name, and renders the
// report as a JSON artifact and an Excel workbook.
package quality
