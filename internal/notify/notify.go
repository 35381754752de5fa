// Package notify publishes run outcomes. Delivery to an external channel is
// a deployment concern behind the Notifier interface; the bundled notifiers
// write to the log stream and to a local outbox file.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"fedflow/pkg/contracts/domain"
)

// Summary is the outcome payload handed to notifiers.
type Summary struct {
	RunID         string             `json:"run_id"`
	Mode          domain.Mode        `json:"mode"`
	Window        string             `json:"window"`
	Status        domain.RunStatus   `json:"status"`
	DryRun        bool               `json:"dry_run,omitempty"`
	RawRows       int64              `json:"raw_rows"`
	OutputRows    int64              `json:"output_rows"`
	DuplicateRows int64              `json:"duplicate_rows"`
	Completeness  float64            `json:"completeness"`
	Issues        domain.IssueCounts `json:"issues"`
	DatasetPath   string             `json:"dataset_path,omitempty"`
	ReportPath    string             `json:"report_path,omitempty"`
	Error         string             `json:"error,omitempty"`
	FinishedAt    time.Time          `json:"finished_at"`
}

// NewSummary condenses a run record and its quality report (nil when the run
// never produced one) into the notification payload.
func NewSummary(record domain.RunRecord, report *domain.QualityReport) Summary {
	s := Summary{
		RunID:         record.RunID,
		Mode:          record.Mode,
		Window:        record.Window.String(),
		Status:        record.Status,
		DryRun:        record.DryRun,
		RawRows:       record.RawRows,
		OutputRows:    record.OutputRows,
		DuplicateRows: record.DuplicateRows,
		DatasetPath:   record.DatasetPath,
		ReportPath:    record.ReportPath,
		Error:         record.Error,
	}
	if record.FinishedAt != nil {
		s.FinishedAt = *record.FinishedAt
	}
	if report != nil {
		s.Completeness = report.Completeness
		s.Issues = report.Counts
	}
	return s
}

// Notifier delivers one run outcome. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// LogNotifier emits the outcome as one structured log event.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Notify(ctx context.Context, s Summary) error {
	n.logger.InfoContext(ctx, "run_notification",
		slog.String("run_id", s.RunID),
		slog.String("mode", string(s.Mode)),
		slog.String("window", s.Window),
		slog.String("status", string(s.Status)),
		slog.Int64("raw_rows", s.RawRows),
		slog.Int64("output_rows", s.OutputRows),
		slog.Int64("duplicate_rows", s.DuplicateRows),
		slog.Float64("completeness", s.Completeness),
		slog.Int("issue_count", s.Issues.Total()),
		slog.String("error", s.Error))
	return nil
}

// FileNotifier appends outcomes to a JSON-lines outbox that an external
// relay tails.
type FileNotifier struct {
	path string
	mu   sync.Mutex
}

func NewFileNotifier(path string) *FileNotifier {
	return &FileNotifier{path: path}
}

func (n *FileNotifier) Notify(ctx context.Context, s Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(n.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// Multi fans one outcome out to several notifiers; every notifier is
// attempted even when an earlier one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, s Summary) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
