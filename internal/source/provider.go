package source

import (
	"context"
	"fmt"
	"time"

	"fedflow/pkg/contracts/domain"
)

// Artifact is one raw bulk file delivered for a window. The returned set is
// the provider's per-file report: every artifact listed was opened and
// counted, and a file the transport cannot deliver fails the fetch with that
// file named.
type Artifact struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time

	// Rows is the data row count the provider observed, excluding the
	// header row.
	Rows int64
}

// Provider fetches the raw artifacts covering a window. Implementations must
// be safe for concurrent use; the scheduler and the HTTP trigger can both
// start runs.
type Provider interface {
	Fetch(ctx context.Context, window domain.Window) ([]Artifact, error)
}

// UnavailableError reports that the source itself could not be reached or
// inspected. The orchestrator treats it as retryable, unlike a corrupt
// artifact.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("source unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
