package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedflow/pkg/contracts/domain"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func window(t *testing.T, start, end string) domain.Window {
	t.Helper()
	s, err := time.Parse(domain.DateLayout, start)
	require.NoError(t, err)
	e, err := time.Parse(domain.DateLayout, end)
	require.NoError(t, err)
	return domain.Window{Start: s, End: e}
}

func TestDirProviderScopesDatedFilesToWindow(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "contracts_2025-10-27.csv", "a\n1\n")
	writeArtifact(t, dir, "contracts_2025-10-28.csv", "a\n2\n")
	writeArtifact(t, dir, "contracts_20251029.csv", "a\n3\n")
	writeArtifact(t, dir, "contracts_full.csv", "a\n4\n")
	writeArtifact(t, dir, "notes.txt", "not an artifact")

	p := NewDirProvider(dir, "", nil)
	artifacts, err := p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))
	require.NoError(t, err)

	var names []string
	for _, a := range artifacts {
		names = append(names, a.Name)
		assert.Equal(t, int64(1), a.Rows, a.Name)
	}
	// The dated files outside the window drop out; the undated file stays.
	assert.Equal(t, []string{"contracts_2025-10-28.csv", "contracts_full.csv"}, names)
}

func TestDirProviderCountsRowsPerArtifact(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "a_2025-10-28.csv",
		"award_id_piid,recipient_name\nP1,Acme\nP2,Globex\nP3,Initech\n")
	writeArtifact(t, dir, "b_2025-10-28.csv", "award_id_piid,recipient_name\n")

	p := NewDirProvider(dir, "", nil)
	artifacts, err := p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.Equal(t, int64(3), artifacts[0].Rows)
	assert.Equal(t, int64(0), artifacts[1].Rows, "header-only artifact has zero data rows")
}

func TestDirProviderRejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "good_2025-10-28.csv", "a\n1\n")
	writeArtifact(t, dir, "bad_2025-10-28.csv", "a,b\n\"unterminated\n")

	p := NewDirProvider(dir, "", nil)
	_, err := p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_2025-10-28.csv")

	// A corrupt file is a data problem, not an outage.
	var unavailable *UnavailableError
	assert.False(t, errors.As(err, &unavailable))
}

func TestDirProviderMissingDir(t *testing.T) {
	p := NewDirProvider(filepath.Join(t.TempDir(), "absent"), "", nil)
	_, err := p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, unavailable.Error(), "does not exist")
}

func TestDirProviderEmptyMatchIsNotAnError(t *testing.T) {
	p := NewDirProvider(t.TempDir(), "", nil)
	artifacts, err := p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestCountRowsParsesQuotedNewlines(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "multiline.csv",
		"award_id_piid,description\nP1,\"line one\nline two\"\nP2,plain\n")

	rows, err := CountRows(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows, "embedded newline must not inflate the count")
}

func TestCountRowsMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "empty.csv", "")

	_, err := CountRows(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestReadRowsAssignsSequenceAcrossArtifacts(t *testing.T) {
	dir := t.TempDir()
	first := writeArtifact(t, dir, "a_2025-10-28.csv",
		"award_id_piid,recipient_name\nP1,Acme\nP2,Globex\n")
	second := writeArtifact(t, dir, "b_2025-10-28.csv",
		"award_id_piid,recipient_name\nP3,Initech\n")

	rows, err := ReadRows(context.Background(), []Artifact{
		{Path: first, Name: "a_2025-10-28.csv"},
		{Path: second, Name: "b_2025-10-28.csv"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(1), rows[0].Seq)
	assert.Equal(t, int64(3), rows[2].Seq)
	assert.Equal(t, "a_2025-10-28.csv", rows[0].SourceFile)
	assert.Equal(t, "b_2025-10-28.csv", rows[2].SourceFile)
	assert.Equal(t, "P3", rows[2].Values["award_id_piid"])
	assert.Equal(t, "Initech", rows[2].Values["recipient_name"])
}

func TestReadRowsStripsBOMAndRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "bom.csv",
		"\uFEFFaward_id_piid,recipient_name,dollars\nP1,Acme\nP2,Globex,100,extra\n")

	rows, err := ReadRows(context.Background(), []Artifact{{Path: path, Name: "bom.csv"}})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "P1", rows[0].Values["award_id_piid"])
	_, hasDollars := rows[0].Values["dollars"]
	assert.False(t, hasDollars, "short row leaves trailing columns absent")
	assert.Equal(t, "100", rows[1].Values["dollars"])
}

func TestReadRowsMissingHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "empty.csv", "")

	_, err := ReadRows(context.Background(), []Artifact{{Path: path, Name: "empty.csv"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing header row")
}

func TestReadRowsCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "a.csv", "col\nv\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadRows(ctx, []Artifact{{Path: path, Name: "a.csv"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticProvider(t *testing.T) {
	p := &StaticProvider{Artifacts: []Artifact{{Name: "x.csv"}}}
	artifacts, err := p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)

	p = &StaticProvider{Err: &UnavailableError{Reason: "offline"}}
	_, err = p.Fetch(context.Background(), window(t, "2025-10-28", "2025-10-28"))
	var unavailable *UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
