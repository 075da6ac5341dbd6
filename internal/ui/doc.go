// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI wraps one long-running pipeline operation (history sync, file
// import, or enrichment) in a two-view workflow:
//  1. [RunningView] : Live phase status with a rolling tail of progress messages
//  2. [ResultView] : Final summary or failure
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the tasks engines, providing
// non-blocking status reporting while the operation runs in the background.
package ui
