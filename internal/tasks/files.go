package tasks

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/providers"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
)

// malformedLineLogLimit caps per-file logging of unparseable lines; past it
// only the final count is reported.
const malformedLineLogLimit = 5

// maxListenLineBytes bounds a single JSONL line. Export lines are small, but
// the default scanner limit of 64K is too tight for listens with large
// additional_info blobs.
const maxListenLineBytes = 1 << 20

// FileImportOpts narrows one export-directory import run.
type FileImportOpts struct {
	Force    bool // Re-read files even when unchanged since the last import
	Year     int  // Only this year directory (0: all)
	Month    int  // Only this month's file within matched years (0: all)
	MaxFiles int  // Cap on files read this run (0: unlimited)
}

// FileImportResult summarizes one export-directory import run.
type FileImportResult struct {
	User      string
	Files     int // Export files discovered
	Imported  int // Files actually read this run
	SkippedUp int // Files skipped as up to date
	Fetched   int // Lines parsed into listens
	Malformed int // Lines that failed to parse
	Inserted  int // Rows actually new in storage
}

// FileImporter ingests local ListenBrainz export trees.
//
// An export root contains listens/<year>/<month>.jsonl with one listen JSON
// object per line. Each file's mtime is stored as its watermark; an unchanged
// file is skipped on later runs unless force is set.
type FileImporter struct {
	store  *repositories.Store
	logger *log.Logger
}

// NewFileImporter creates a FileImporter over the store.
func NewFileImporter(store *repositories.Store, logger *log.Logger) *FileImporter {
	return &FileImporter{store: store, logger: silenced(logger)}
}

// Run imports matching listens files under root for the given local user.
func (f *FileImporter) Run(progress chan<- ProgressUpdate, root, user string, opts FileImportOpts) (*FileImportResult, error) {
	result := &FileImportResult{User: user}
	logger := f.logger.With("user", user, "root", root)

	files, err := f.discoverFiles(root, opts.Year, opts.Month)
	if err != nil {
		return nil, err
	}
	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}
	result.Files = len(files)
	sendProgress(progress, scanFilesUpdate(len(files)))
	if len(files) == 0 {
		logger.Warn("no export files found")
		return result, nil
	}

	for i, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			rel = file
		}

		info, err := os.Stat(file)
		if err != nil {
			return result, fmt.Errorf("failed to stat export file: %w", err)
		}
		mtime := info.ModTime().Unix()

		if !opts.Force {
			mark, err := f.store.Imports.Get(ScopeListenBrainzFiles, user, rel)
			if err != nil {
				return result, err
			}
			if mark != nil && mark.Watermark >= mtime {
				result.SkippedUp++
				sendProgress(progress, skipFileUpdate(i+1, len(files), rel))
				continue
			}
		}

		scrobbles, parsed, malformed, err := f.readFile(file, user)
		if err != nil {
			return result, err
		}
		result.Fetched += parsed
		result.Malformed += malformed

		inserted, err := f.store.Scrobbles.Save(scrobbles)
		if err != nil {
			return result, err
		}
		result.Inserted += inserted
		result.Imported++

		if err := f.store.Imports.Set(ScopeListenBrainzFiles, user, rel, mtime, int64(inserted)); err != nil {
			return result, err
		}

		sendProgress(progress, importFileUpdate(i+1, len(files), rel, inserted))
		logger.Debug("imported file", "file", rel, "parsed", parsed, "malformed", malformed, "inserted", inserted)
	}

	logger.Info("file import complete",
		"files", result.Files, "imported", result.Imported,
		"skipped", result.SkippedUp, "inserted", result.Inserted)
	return result, nil
}

// discoverFiles lists listens/<year>/<month>.jsonl files sorted by path, so
// imports run in chronological order. yearFilter and monthFilter narrow the
// scan when non-zero.
func (f *FileImporter) discoverFiles(root string, yearFilter, monthFilter int) ([]string, error) {
	listensDir := filepath.Join(root, "listens")
	years, err := os.ReadDir(listensDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no listens directory under %s", shared.ErrSourceMissing, root)
		}
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var files []string
	for _, year := range years {
		if !year.IsDir() {
			continue
		}
		yearNum, err := strconv.Atoi(year.Name())
		if err != nil {
			continue
		}
		if yearFilter > 0 && yearNum != yearFilter {
			continue
		}

		months, err := os.ReadDir(filepath.Join(listensDir, year.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read year directory: %w", err)
		}
		for _, month := range months {
			if month.IsDir() || filepath.Ext(month.Name()) != ".jsonl" {
				continue
			}
			if monthFilter > 0 {
				monthNum, err := strconv.Atoi(strings.TrimSuffix(month.Name(), ".jsonl"))
				if err != nil || monthNum != monthFilter {
					continue
				}
			}
			files = append(files, filepath.Join(listensDir, year.Name(), month.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// readFile parses one JSONL export file into scrobbles. Malformed lines are
// counted and skipped, never fatal.
func (f *FileImporter) readFile(path, user string) ([]models.Scrobble, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open export file: %w", err)
	}
	defer file.Close()

	var (
		scrobbles []models.Scrobble
		parsed    int
		malformed int
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxListenLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var listen providers.Listen
		if err := json.Unmarshal(line, &listen); err != nil {
			malformed++
			if malformed <= malformedLineLogLimit {
				f.logger.Warn("skipping malformed line", "file", filepath.Base(path), "line", lineNo, "err", err)
			}
			continue
		}

		if listen.ListenedAt == 0 || listen.TrackMetadata.ArtistName == "" || listen.TrackMetadata.TrackName == "" {
			malformed++
			continue
		}

		parsed++
		scrobbles = append(scrobbles, models.Scrobble{
			User:       user,
			Artist:     listen.TrackMetadata.ArtistName,
			Track:      listen.TrackMetadata.TrackName,
			Album:      listen.TrackMetadata.ReleaseName,
			Timestamp:  listen.ListenedAt,
			ArtistMBID: listen.ArtistMBID(),
			AlbumMBID:  listen.TrackMetadata.AdditionalInfo.ReleaseMBID,
			TrackMBID:  listen.TrackMetadata.AdditionalInfo.RecordingMBID,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, parsed, malformed, fmt.Errorf("failed to read export file: %w", err)
	}

	if malformed > malformedLineLogLimit {
		f.logger.Warn("additional malformed lines suppressed", "file", filepath.Base(path), "total", malformed)
	}

	return scrobbles, parsed, malformed, nil
}
