// package formatter provides functions to export listening history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/repositories"
)

// HistoryExport bundles one user's history snapshot for export.
type HistoryExport struct {
	User      string
	Stats     repositories.UserStats
	Scrobbles []models.Scrobble
}

// ExportToCSV converts a history export to CSV format with columns: User, Artist, Track, Album, Timestamp, PlayedAt
func ExportToCSV(export *HistoryExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"User", "Artist", "Track", "Album", "Timestamp", "PlayedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range export.Scrobbles {
		record := []string{
			s.User,
			s.Artist,
			s.Track,
			s.Album,
			strconv.FormatInt(s.Timestamp, 10),
			s.PlayedAt().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a history export to Markdown format with a stats header
func ExportToMarkdown(export *HistoryExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Listening history: %s\n\n", export.User))
	buf.WriteString(fmt.Sprintf("**Scrobbles**: %d\n", export.Stats.Scrobbles))
	buf.WriteString(fmt.Sprintf("**Artists**: %d\n", export.Stats.Artists))
	if export.Stats.First > 0 {
		buf.WriteString(fmt.Sprintf("**From**: %s\n", formatDay(export.Stats.First)))
		buf.WriteString(fmt.Sprintf("**To**: %s\n", formatDay(export.Stats.Last)))
	}
	buf.WriteString("\n## Scrobbles\n\n")

	for i, s := range export.Scrobbles {
		albumPart := ""
		if s.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", s.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, s.Artist, s.Track, albumPart, s.PlayedAt().Format("2006-01-02 15:04")))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a history export to plain text format
func ExportToText(export *HistoryExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("User: %s\n", export.User))
	buf.WriteString(fmt.Sprintf("Scrobbles: %d\n\n", export.Stats.Scrobbles))

	for i, s := range export.Scrobbles {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, s.Artist, s.Track))
	}

	return buf.Bytes(), nil
}

// ToStatsJSON generates a JSON representation of the export's stats header
func ToStatsJSON(stats repositories.UserStats) ([]byte, error) {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats: %w", err)
	}
	return data, nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ScrobblesFile string
	StatsFile     string
}

// WriteCSVExport exports a history snapshot to CSV with an accompanying stats JSON file.
//
// Defaults to the user name as the base filename & creates {base}_scrobbles.csv and {base}_stats.json
func WriteCSVExport(export *HistoryExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.User
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	scrobblesFile := baseFilepath + "_scrobbles.csv"
	if err := os.WriteFile(scrobblesFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	statsJSON, err := ToStatsJSON(export.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to generate stats JSON: %w", err)
	}

	statsFile := baseFilepath + "_stats.json"
	if err := os.WriteFile(statsFile, statsJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write stats file: %w", err)
	}

	return &CSVExportResult{
		ScrobblesFile: scrobblesFile,
		StatsFile:     statsFile,
	}, nil
}

// WriteMarkdownExport exports a history snapshot to a Markdown file.
//
// Defaults to {user}_history.md as the filename.
func WriteMarkdownExport(export *HistoryExport, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%s_history.md", export.User)
	}

	mdData, err := ExportToMarkdown(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	if err := os.WriteFile(filepath, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return filepath, nil
}

// WriteTextExport exports a history snapshot to plain text format.
//
// Defaults to {user}_history.txt as the filename.
func WriteTextExport(export *HistoryExport, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%s_history.txt", export.User)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(filepath, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return filepath, nil
}

func formatDay(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
