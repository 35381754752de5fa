package transform

import (
	"fmt"

	"fedflow/pkg/contracts/domain"
)

// maxGroupResolutions caps the per-group detail carried on the result; the
// summary counts are always exact.
const maxGroupResolutions = 100

// GroupResolution describes one resolved duplicate group. Informational: the
// engine logs these, they never fail anything.
type GroupResolution struct {
	Key       domain.IdentityKey `json:"key"`
	Members   int                `json:"members"`
	WinnerSeq int64              `json:"winner_seq"`
}

// DedupResult is the deduplicated record set plus the evidence of what was
// collapsed.
type DedupResult struct {
	Records     []domain.Record
	Groups      int64
	RowsRemoved int64
	Resolutions []GroupResolution
}

// Issue renders the duplicate summary as a quality issue, or nil when
// nothing was collapsed.
func (r DedupResult) Issue() *domain.Issue {
	if r.Groups == 0 {
		return nil
	}
	return &domain.Issue{
		Column:   "Identity Key",
		Severity: domain.SeverityWarning,
		Message:  fmt.Sprintf("%d duplicate groups collapsed", r.Groups),
		Rows:     r.RowsRemoved,
	}
}

// Dedup collapses records sharing an identity key (PIID, Modification Number,
// Date Signed) down to one winner per key.
//
// The winner rule is deterministic and independent of input order: the record
// with fewer missing canonical fields wins; on an exact tie the higher
// ingestion sequence wins. Records whose key components are all missing
// cannot be proven duplicates and pass through untouched. Output preserves
// first-seen group order, so running Dedup on its own output is a no-op.
func Dedup(records []domain.Record) DedupResult {
	out := make([]domain.Record, 0, len(records))
	slot := make(map[domain.IdentityKey]int)
	members := make(map[domain.IdentityKey]int)
	var groupOrder []domain.IdentityKey

	for _, rec := range records {
		key := rec.Key()
		if key.Empty() {
			out = append(out, rec)
			continue
		}
		i, seen := slot[key]
		if !seen {
			slot[key] = len(out)
			members[key] = 1
			out = append(out, rec)
			continue
		}
		members[key]++
		if members[key] == 2 {
			groupOrder = append(groupOrder, key)
		}
		if wins(rec, out[i]) {
			out[i] = rec
		}
	}

	result := DedupResult{Records: out}
	for _, key := range groupOrder {
		result.Groups++
		result.RowsRemoved += int64(members[key] - 1)
		if len(result.Resolutions) < maxGroupResolutions {
			result.Resolutions = append(result.Resolutions, GroupResolution{
				Key:       key,
				Members:   members[key],
				WinnerSeq: out[slot[key]].Seq,
			})
		}
	}
	return result
}

// wins reports whether the challenger replaces the incumbent for a key.
func wins(challenger, incumbent domain.Record) bool {
	cm, im := challenger.MissingCount(), incumbent.MissingCount()
	if cm != im {
		return cm < im
	}
	return challenger.Seq > incumbent.Seq
}
