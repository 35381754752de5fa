package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"fedflow/pkg/contracts/domain"
)

// DefaultPattern matches the bulk extracts the upstream job drops.
const DefaultPattern = "*.csv"

// fileDate matches YYYY-MM-DD, YYYY_MM_DD, or YYYYMMDD embedded in a file
// name.
var fileDate = regexp.MustCompile(`(\d{4})[-_]?(\d{2})[-_]?(\d{2})`)

// DirProvider serves artifacts from a local directory. Files carrying a date
// in their name are scoped to the requested window; undated files are always
// included.
type DirProvider struct {
	dir     string
	pattern string
	logger  *slog.Logger
}

// NewDirProvider builds a provider over dir. pattern defaults to
// DefaultPattern when empty.
func NewDirProvider(dir, pattern string, logger *slog.Logger) *DirProvider {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirProvider{
		dir:     dir,
		pattern: pattern,
		logger:  logger.With(slog.String("component", "source.dir")),
	}
}

func (p *DirProvider) Fetch(ctx context.Context, window domain.Window) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &UnavailableError{Reason: fmt.Sprintf("source directory %s does not exist", p.dir)}
		}
		return nil, &UnavailableError{Reason: "stat source directory", Err: err}
	}
	if !info.IsDir() {
		return nil, &UnavailableError{Reason: fmt.Sprintf("%s is not a directory", p.dir)}
	}

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, &UnavailableError{Reason: "read source directory", Err: err}
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		matched, err := filepath.Match(p.pattern, strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("bad artifact pattern %q: %w", p.pattern, err)
		}
		if !matched {
			continue
		}
		if d, ok := dateFromName(name); ok && !window.Contains(d) {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(p.dir, name)
		rows, err := CountRows(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("artifact %s: %w", name, err)
		}
		artifacts = append(artifacts, Artifact{
			Path:    path,
			Name:    name,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Rows:    rows,
		})
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })

	var totalRows int64
	for _, a := range artifacts {
		totalRows += a.Rows
	}
	p.logger.InfoContext(ctx, "artifacts_discovered",
		slog.String("dir", p.dir),
		slog.String("window", window.String()),
		slog.Int("count", len(artifacts)),
		slog.Int64("rows", totalRows))
	return artifacts, nil
}

// dateFromName extracts the first plausible calendar date embedded in a file
// name.
func dateFromName(name string) (time.Time, bool) {
	for _, m := range fileDate.FindAllStringSubmatch(name, -1) {
		d, err := time.Parse(domain.DateLayout, fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
		if err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
