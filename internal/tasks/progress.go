package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchPages Phase = iota
	SaveBatch
	ScanFiles
	ImportFile
	DiscoverEntities
	EnrichEntity
)

func (p Phase) String() string {
	switch p {
	case FetchPages:
		return "fetch_pages"
	case SaveBatch:
		return "save_batch"
	case ScanFiles:
		return "scan_files"
	case ImportFile:
		return "import_file"
	case DiscoverEntities:
		return "discover_entities"
	case EnrichEntity:
		return "enrich_entity"
	default:
		return ""
	}
}

func fetchPageUpdate(page, totalPages int, user string, collected int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    page,
		Total:   totalPages,
		Message: fmt.Sprintf("[%d/%d] %s: %d scrobbles collected", page, totalPages, user, collected),
	}
}

func pageRetryUpdate(page, totalPages int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    page,
		Total:   totalPages,
		Message: fmt.Sprintf("[%d/%d] page failed, retrying: %v", page, totalPages, err),
	}
}

func saveBatchUpdate(user string, fetched, inserted int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveBatch,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s: saved %d of %d fetched scrobbles", user, inserted, fetched),
	}
}

func scanFilesUpdate(found int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanFiles,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d export files", found),
	}
}

func importFileUpdate(step, total int, path string, inserted int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %d new scrobbles", step, total, path, inserted),
	}
}

func skipFileUpdate(step, total int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportFile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: unchanged, skipped", step, total, path),
	}
}

func discoverUpdate(kind string, found int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   DiscoverEntities,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d %ss needing enrichment", found, kind),
	}
}

func enrichEntityUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnrichEntity,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, name),
	}
}

func enrichSkippedUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnrichEntity,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (cached, skipped)", step, total, name),
	}
}

func enrichFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnrichEntity,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
