// Package ui implements a live extraction monitor using bubbletea's Elm architecture.
//
// The monitor has two views:
//  1. [RunningView] : spinner, chunk progress and worker events while the pipeline runs
//  2. [ResultView] : the run summary and a browsable list of persisted batches
//
// The [Model] starts the run in a goroutine and receives [pipeline.ProgressUpdate] values over a
// channel, one message at a time, so the pipeline never blocks on rendering. Pressing q while the
// run is active cancels it; the pipeline then shuts its workers down and the monitor shows what was
// stored.
package ui
