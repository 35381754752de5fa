package domain

// Canonical headers referenced by name in validation defaults, deduplication,
// and analysis. The complete 23-header contract lives in the field-spec table;
// these constants exist so well-known columns are not repeated as string
// literals across packages.
const (
	HeaderFiscalYear         = "Fiscal Year"
	HeaderPIID               = "PIID"
	HeaderAAC                = "AAC"
	HeaderInstrumentType     = "Instrument Type"
	HeaderReferencedIDVPIID  = "Referenced IDV PIID"
	HeaderModificationNumber = "Modification Number"
	HeaderDateSigned         = "Date Signed"
	HeaderCompletionDate     = "Est. Ultimate Completion Date"
	HeaderLastDateToOrder    = "Last Date to Order"
	HeaderDollarsObligated   = "Dollars Obligated"
	HeaderTotalContractValue = "Base and All Options Value (Total Contract Value)"
	HeaderLegalBusinessName  = "Legal Business Name"
	HeaderContractingOffice  = "Contracting Office Name"
	HeaderFundingAgencyName  = "Funding Agency Name"
	HeaderDescription        = "Description of Requirement"
	HeaderBusinessSize       = "Contracting Officers Business Size Determination"
)

// Record is one canonical output row: a typed cell for every canonical header.
// Invariant: Values holds exactly the full header set of the active field-spec
// table, for every record of every run, regardless of raw input shape.
type Record struct {
	// Values is keyed by canonical header.
	Values map[string]Value `json:"values"`

	// Seq is the ingestion sequence number assigned when the raw row was
	// read. Later sequences win deduplication ties.
	Seq int64 `json:"seq"`

	// SourceFile names the raw artifact the row came from.
	SourceFile string `json:"source_file,omitempty"`
}

// NewRecord returns a record with every listed header present and missing,
// typed per the supplied kinds.
func NewRecord(headers []string, kinds map[string]Kind) Record {
	values := make(map[string]Value, len(headers))
	for _, h := range headers {
		values[h] = MissingValue(kinds[h])
	}
	return Record{Values: values}
}

// Value returns the cell for header, or a text-kind missing marker when the
// header is absent (which violates the record invariant and only happens on
// hand-built records in tests).
func (r Record) Value(header string) Value {
	if v, ok := r.Values[header]; ok {
		return v
	}
	return MissingValue(KindText)
}

// MissingCount returns the number of cells carrying the missing marker.
func (r Record) MissingCount() int {
	n := 0
	for _, v := range r.Values {
		if v.IsMissing() {
			n++
		}
	}
	return n
}

// IdentityKey is the composite identity of a logical transaction, used only
// for duplicate detection.
type IdentityKey struct {
	PIID               string `json:"piid"`
	ModificationNumber string `json:"modification_number"`
	DateSigned         string `json:"date_signed"`
}

// Key derives the identity key from the record's canonical cells. Missing
// components render as empty strings.
func (r Record) Key() IdentityKey {
	return IdentityKey{
		PIID:               r.Value(HeaderPIID).Render(),
		ModificationNumber: r.Value(HeaderModificationNumber).Render(),
		DateSigned:         r.Value(HeaderDateSigned).Render(),
	}
}

// Empty reports whether every key component is missing. Records with a fully
// empty key cannot be proven duplicates and bypass dedup grouping.
func (k IdentityKey) Empty() bool {
	return k.PIID == "" && k.ModificationNumber == "" && k.DateSigned == ""
}

// String renders the key for logs and issue details.
func (k IdentityKey) String() string {
	return k.PIID + "|" + k.ModificationNumber + "|" + k.DateSigned
}
