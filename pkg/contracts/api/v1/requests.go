// Package api contains the versioned API contract definitions for the fedflow
// service. Version v1 is the current stable surface.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"fedflow/pkg/contracts/domain"
)

// TriggerRunRequest is the body of POST /api/v1/runs. From and To, when both
// set, override the mode-derived window.
type TriggerRunRequest struct {
	Mode         string `json:"mode" validate:"required,runmode"`
	From         string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To           string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BackfillDays int    `json:"backfill_days,omitempty" validate:"omitempty,min=1,max=3650"`
	DryRun       bool   `json:"dry_run,omitempty"`
}

// Bind implements render.Binder. It checks field shape only; window semantics
// (ordering, span limits) belong to the resolver.
func (req *TriggerRunRequest) Bind(r *http.Request) error {
	if req.Mode == "" {
		return errors.New("mode is required")
	}
	if !domain.Mode(req.Mode).Valid() {
		return fmt.Errorf("invalid mode %q", req.Mode)
	}
	if (req.From == "") != (req.To == "") {
		return errors.New("from and to must be provided together")
	}
	if req.BackfillDays < 0 {
		return errors.New("backfill_days must be positive")
	}
	if _, _, err := req.Dates(); err != nil {
		return err
	}
	return nil
}

// Dates parses the explicit window bounds. Both are zero when the request
// relies on the mode-derived window.
func (req *TriggerRunRequest) Dates() (start, end time.Time, err error) {
	if req.From == "" && req.To == "" {
		return time.Time{}, time.Time{}, nil
	}
	start, err = time.Parse("2006-01-02", req.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q: expected YYYY-MM-DD", req.From)
	}
	end, err = time.Parse("2006-01-02", req.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q: expected YYYY-MM-DD", req.To)
	}
	return start, end, nil
}
