package formatter

import (
	"path/filepath"
	"strings"
	"testing"

	th "github.com/scrobtools/scrob/internal/testing"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/repositories"
)

func sampleExport() *HistoryExport {
	return &HistoryExport{
		User: "alice",
		Stats: repositories.UserStats{
			User:      "alice",
			Scrobbles: 2,
			Artists:   2,
			First:     1700000100,
			Last:      1700000200,
		},
		Scrobbles: []models.Scrobble{
			{User: "alice", Artist: "Four Tet", Track: "Parallel 1", Album: "Parallel", Timestamp: 1700000200},
			{User: "alice", Artist: "Burial", Track: "Archangel", Album: "Untrue", Timestamp: 1700000100},
		},
	}
}

func TestExportToCSV(t *testing.T) {
	data, err := ExportToCSV(sampleExport())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 records, got %d lines", len(lines))
	}
	if lines[0] != "User,Artist,Track,Album,Timestamp,PlayedAt" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Four Tet,Parallel 1,Parallel,1700000200") {
		t.Errorf("unexpected first record: %s", lines[1])
	}
}

func TestExportToMarkdown(t *testing.T) {
	data, err := ExportToMarkdown(sampleExport())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	md := string(data)
	for _, want := range []string{
		"# Listening history: alice",
		"**Scrobbles**: 2",
		"**From**: 2023-11-14",
		"1. Four Tet - Parallel 1 (Parallel)",
		"2. Burial - Archangel (Untrue)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q", want)
		}
	}
}

func TestExportToText(t *testing.T) {
	data, err := ExportToText(sampleExport())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	text := string(data)
	if !strings.Contains(text, "User: alice") || !strings.Contains(text, "2. Burial - Archangel") {
		t.Errorf("unexpected text output:\n%s", text)
	}
}

func TestWriteCSVExport(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "alice")

	result, err := WriteCSVExport(sampleExport(), base)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	th.AssertFileExists(t, result.ScrobblesFile)
	th.AssertFileExists(t, result.StatsFile)

	stats := th.MustReadFile(t, result.StatsFile)
	if !strings.Contains(stats, `"Scrobbles": 2`) {
		t.Errorf("unexpected stats JSON: %s", stats)
	}
}

func TestWriteMarkdownExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")

	written, err := WriteMarkdownExport(sampleExport(), path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if written != path {
		t.Errorf("expected path %s, got %s", path, written)
	}
	th.AssertFileExists(t, path)
}

func TestWriteTextExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if _, err := WriteTextExport(sampleExport(), path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	th.AssertFileExists(t, path)
}
