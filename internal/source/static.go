package source

import (
	"context"

	"fedflow/pkg/contracts/domain"
)

// StaticProvider returns a fixed artifact set, or a fixed error. Used by
// tests.
type StaticProvider struct {
	Artifacts []Artifact
	Err       error
}

func (p *StaticProvider) Fetch(ctx context.Context, _ domain.Window) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Artifacts, nil
}
