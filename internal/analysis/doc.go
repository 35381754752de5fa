// Package analysis computes summary insights over a canonical dataset
// artifact: dollar statistics, fiscal year and contract type distributions,
// agency and vendor rankings, small-business participation per flag column,
// and per-column missing data.
//
// The loader reads the dataset the exporter wrote, so round-tripping an
// artifact through analyze is lossless. Reports render as a sectioned text
// summary or as an Excel workbook; both orderings are deterministic.
package analysis
