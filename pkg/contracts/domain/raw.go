package domain

// RawRecord is one source row as read from a raw artifact: untyped column
// name to textual value, plus provenance. Produced by the artifact reader,
// consumed once by the schema mapper.
type RawRecord struct {
	Values     map[string]string
	SourceFile string
	// Seq is the global ingestion sequence across all artifacts of the run,
	// assigned in read order before any parallel processing.
	Seq int64
}
