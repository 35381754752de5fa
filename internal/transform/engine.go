package transform

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"fedflow/internal/schema"
	"fedflow/pkg/contracts/domain"
)

// cancelCheckInterval is how many rows a worker processes between context
// checks.
const cancelCheckInterval = 1024

// Options configure a transform pass.
type Options struct {
	// Workers bounds record-level parallelism. Zero means NumCPU capped at 8.
	Workers  int
	Coercion CoercionRules
	Filters  FilterRules
	// RequiredHeaders overrides the table's required set when non-nil.
	RequiredHeaders []string
}

// Result is the output of the full transform sub-pipeline.
type Result struct {
	// Records is the deduplicated canonical set, every record carrying the
	// full header set.
	Records []domain.Record
	// Issues is all evidence accumulated across mapping, coercion,
	// filtering, validation, and deduplication, unsorted; the profiler
	// orders the final report.
	Issues []domain.Issue
	// Accumulator is the merged tally state, consumed by the profiler for
	// coercion-failure rates.
	Accumulator *Accumulator
	RawRows     int64
	FlaggedRows int64
	Duplicates  DedupResult
}

// Engine drives mapper, coercion, filters, and validation across a bounded
// worker pool, with deduplication as the synchronization point.
type Engine struct {
	table     *schema.Table
	mapper    *schema.Mapper
	coercer   *Coercer
	filter    *Filter
	validator *Validator
	workers   int
	logger    *slog.Logger
}

// NewEngine builds an engine over the table.
func NewEngine(table *schema.Table, opts Options, logger *slog.Logger) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 8)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		table:     table,
		mapper:    schema.NewMapper(table),
		coercer:   NewCoercer(opts.Coercion),
		filter:    NewFilter(opts.Filters),
		validator: NewValidator(table, opts.RequiredHeaders),
		workers:   workers,
		logger:    logger.With(slog.String("component", "transform.engine")),
	}
}

type processedRow struct {
	rec     domain.Record
	keep    bool
	flagged bool
}

// Run transforms the raw rows. Row order is preserved end to end regardless
// of worker interleaving: each worker owns a contiguous slice of the input
// and writes results into indexed slots. Returns an error only on context
// cancellation; data problems degrade cells and accumulate issues instead.
func (e *Engine) Run(ctx context.Context, raws []domain.RawRecord) (*Result, error) {
	n := len(raws)
	processed := make([]processedRow, n)
	workers := min(e.workers, max(n, 1))
	accs := make([]*Accumulator, workers)

	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		acc := NewAccumulator()
		accs[w] = acc
		start := w * chunk
		if start >= n {
			continue
		}
		end := min(start+chunk, n)
		g.Go(func() error {
			return e.runWorker(gctx, raws[start:end], processed[start:end], acc)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := NewAccumulator()
	for _, acc := range accs {
		merged.Merge(acc)
	}

	kept := make([]domain.Record, 0, n)
	var flagged int64
	for i := range processed {
		if !processed[i].keep {
			continue
		}
		kept = append(kept, processed[i].rec)
		if processed[i].flagged {
			flagged++
		}
	}

	dd := Dedup(kept)
	for _, res := range dd.Resolutions {
		e.logger.InfoContext(ctx, "duplicate_group_resolved",
			slog.String("identity_key", res.Key.String()),
			slog.Int("members", res.Members),
			slog.Int64("winner_seq", res.WinnerSeq))
	}

	issues := merged.Issues(e.table)
	if di := dd.Issue(); di != nil {
		issues = append(issues, *di)
	}

	e.logger.InfoContext(ctx, "transform_completed",
		slog.Int("raw_rows", n),
		slog.Int("output_rows", len(dd.Records)),
		slog.Int64("duplicate_rows_removed", dd.RowsRemoved),
		slog.Int64("flagged_rows", flagged),
		slog.Int("workers", workers))

	return &Result{
		Records:     dd.Records,
		Issues:      issues,
		Accumulator: merged,
		RawRows:     int64(n),
		FlaggedRows: flagged,
		Duplicates:  dd,
	}, nil
}

// runWorker transforms one contiguous slice of the input into the matching
// output slots, accumulating evidence locally.
func (e *Engine) runWorker(ctx context.Context, raws []domain.RawRecord, out []processedRow, acc *Accumulator) error {
	for i := range raws {
		if i%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		row := e.mapper.Map(raws[i].Values)
		acc.Presence.Observe(row)
		acc.RowsIn++

		rec := e.coercer.Coerce(e.table, row, acc)
		rec.Seq = raws[i].Seq
		rec.SourceFile = raws[i].SourceFile

		if e.filter != nil && !e.filter.Keep(rec, acc) {
			continue
		}

		flagged := e.validator.Validate(&rec, acc)
		out[i] = processedRow{rec: rec, keep: true, flagged: flagged}
	}
	return nil
}
