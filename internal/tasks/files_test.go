package tasks

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scrobtools/scrob/internal/shared"
)

// writeExportFile writes a listens JSONL file under root/listens/<year>/,
// creating directories as needed.
func writeExportFile(t *testing.T, root, year, name string, lines ...string) string {
	t.Helper()

	dir := filepath.Join(root, "listens", year)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create export dir: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write export file: %v", err)
	}
	return path
}

func TestFileImporter(t *testing.T) {
	line := func(artist, track string, ts string) string {
		return `{"listened_at": ` + ts + `, "track_metadata": {"artist_name": "` + artist + `", "track_name": "` + track + `", "release_name": "Untrue"}}`
	}

	t.Run("Imports Export Tree In Path Order", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2023", "11.jsonl",
			line("Burial", "Archangel", "1700000100"),
			line("Burial", "Ghost Hardware", "1700000200"),
		)
		writeExportFile(t, root, "2023", "12.jsonl",
			line("Four Tet", "Parallel 1", "1701500000"),
		)

		importer := NewFileImporter(store, nil)
		result, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if result.Files != 2 || result.Imported != 2 {
			t.Errorf("expected 2 files imported, got %d/%d", result.Imported, result.Files)
		}
		if result.Inserted != 3 {
			t.Errorf("expected 3 inserted, got %d", result.Inserted)
		}

		count, err := store.Scrobbles.Count("alice")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 rows, got %d", count)
		}

		marks, err := store.Imports.ListByScope(ScopeListenBrainzFiles)
		if err != nil {
			t.Fatalf("failed to list watermarks: %v", err)
		}
		if len(marks) != 2 {
			t.Fatalf("expected 2 watermark rows, got %d", len(marks))
		}
		if marks[0].Unit != filepath.Join("listens", "2023", "11.jsonl") {
			t.Errorf("unexpected watermark unit %q", marks[0].Unit)
		}
	})

	t.Run("Skips Unchanged Files On Rerun", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2023", "11.jsonl", line("Burial", "Archangel", "1700000100"))

		importer := NewFileImporter(store, nil)
		if _, err := importer.Run(nil, root, "alice", FileImportOpts{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}

		result, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if result.SkippedUp != 1 || result.Imported != 0 {
			t.Errorf("expected the unchanged file skipped, got skipped=%d imported=%d", result.SkippedUp, result.Imported)
		}
	})

	t.Run("Reimports When Mtime Advances", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		path := writeExportFile(t, root, "2023", "11.jsonl", line("Burial", "Archangel", "1700000100"))

		importer := NewFileImporter(store, nil)
		if _, err := importer.Run(nil, root, "alice", FileImportOpts{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}

		future := time.Now().Add(time.Hour)
		if err := os.Chtimes(path, future, future); err != nil {
			t.Fatalf("failed to bump mtime: %v", err)
		}

		result, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if result.Imported != 1 {
			t.Errorf("expected touched file reimported, got %d", result.Imported)
		}
		if result.Inserted != 0 {
			t.Errorf("expected dedup to swallow the rerun, got %d inserted", result.Inserted)
		}
	})

	t.Run("Force Reimports Unchanged Files", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2023", "11.jsonl", line("Burial", "Archangel", "1700000100"))

		importer := NewFileImporter(store, nil)
		if _, err := importer.Run(nil, root, "alice", FileImportOpts{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}

		result, err := importer.Run(nil, root, "alice", FileImportOpts{Force: true})
		if err != nil {
			t.Fatalf("forced run failed: %v", err)
		}
		if result.Imported != 1 || result.SkippedUp != 0 {
			t.Errorf("expected forced reimport, got imported=%d skipped=%d", result.Imported, result.SkippedUp)
		}
		if result.Inserted != 0 {
			t.Errorf("expected 0 new rows on forced rerun, got %d", result.Inserted)
		}
	})

	t.Run("Counts Malformed Lines Without Failing", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2023", "11.jsonl",
			"not json at all",
			line("Burial", "Archangel", "1700000100"),
			`{"listened_at": 0, "track_metadata": {"artist_name": "Burial", "track_name": "Dateless"}}`,
			`{"listened_at": 1700000200, "track_metadata": {"artist_name": "", "track_name": "Nameless"}}`,
		)

		importer := NewFileImporter(store, nil)
		result, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Malformed != 3 {
			t.Errorf("expected 3 malformed lines, got %d", result.Malformed)
		}
		if result.Inserted != 1 {
			t.Errorf("expected 1 inserted, got %d", result.Inserted)
		}
	})

	t.Run("Ignores Non Year Directories And Other Files", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2023", "11.jsonl", line("Burial", "Archangel", "1700000100"))
		writeExportFile(t, root, "pinned", "01.jsonl", line("Burial", "Pinned", "1700000200"))
		if err := os.WriteFile(filepath.Join(root, "listens", "2023", "notes.txt"), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write stray file: %v", err)
		}

		importer := NewFileImporter(store, nil)
		result, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Files != 1 {
			t.Errorf("expected only the year-scoped jsonl file, got %d", result.Files)
		}
	})

	t.Run("Year And Month Filters Narrow The Scan", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2022", "11.jsonl", line("Burial", "Archangel", "1690000100"))
		writeExportFile(t, root, "2023", "11.jsonl", line("Burial", "Ghost Hardware", "1700000100"))
		writeExportFile(t, root, "2023", "12.jsonl", line("Four Tet", "Parallel 1", "1701500000"))

		importer := NewFileImporter(store, nil)
		result, err := importer.Run(nil, root, "alice", FileImportOpts{Year: 2023, Month: 11})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Files != 1 || result.Inserted != 1 {
			t.Errorf("expected one matching file, got files=%d inserted=%d", result.Files, result.Inserted)
		}

		count, err := store.Scrobbles.Count("alice")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if count != 1 {
			t.Errorf("expected only the filtered file's row, got %d", count)
		}
	})

	t.Run("Max Files Caps A Run", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		writeExportFile(t, root, "2023", "11.jsonl", line("Burial", "Archangel", "1700000100"))
		writeExportFile(t, root, "2023", "12.jsonl", line("Four Tet", "Parallel 1", "1701500000"))

		importer := NewFileImporter(store, nil)
		result, err := importer.Run(nil, root, "alice", FileImportOpts{MaxFiles: 1})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Files != 1 || result.Imported != 1 {
			t.Errorf("expected the run capped at one file, got files=%d imported=%d", result.Files, result.Imported)
		}

		// The next uncapped run picks up where the cap stopped.
		rest, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("follow-up run failed: %v", err)
		}
		if rest.Imported != 1 || rest.SkippedUp != 1 {
			t.Errorf("expected the remaining file imported, got imported=%d skipped=%d", rest.Imported, rest.SkippedUp)
		}
	})

	t.Run("Missing Listens Directory Is A Distinct Error", func(t *testing.T) {
		store := newTestStore(t)
		importer := NewFileImporter(store, nil)

		_, err := importer.Run(nil, t.TempDir(), "alice", FileImportOpts{})
		if !errors.Is(err, shared.ErrSourceMissing) {
			t.Fatalf("expected ErrSourceMissing, got %v", err)
		}
	})

	t.Run("Empty Listens Tree Imports Nothing", func(t *testing.T) {
		store := newTestStore(t)
		root := t.TempDir()
		if err := os.MkdirAll(filepath.Join(root, "listens"), 0o755); err != nil {
			t.Fatalf("failed to create listens dir: %v", err)
		}

		importer := NewFileImporter(store, nil)
		result, err := importer.Run(nil, root, "alice", FileImportOpts{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Files != 0 || result.Inserted != 0 {
			t.Errorf("expected empty result, got files=%d inserted=%d", result.Files, result.Inserted)
		}
	})
}
