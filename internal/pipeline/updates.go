package pipeline

import (
	"fmt"

	"github.com/desertthunder/musicfp/internal/models"
)

// ProgressUpdate represents a progress event during an extraction run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Pipeline phase enumeration
type Phase int

const (
	Seed Phase = iota
	Spawn
	Persist
	WorkerStopped
	Shutdown
	Drain
	Done
)

func (p Phase) String() string {
	switch p {
	case Seed:
		return "seed"
	case Spawn:
		return "spawn"
	case Persist:
		return "persist"
	case WorkerStopped:
		return "worker_stopped"
	case Shutdown:
		return "shutdown"
	case Drain:
		return "drain"
	case Done:
		return "done"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func seedUpdate(files, chunks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Seed,
		Step:    chunks,
		Total:   chunks,
		Message: fmt.Sprintf("Queued %d files in %d chunks", files, chunks),
	}
}

func spawnUpdate(workers int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Spawn,
		Step:    workers,
		Total:   workers,
		Message: fmt.Sprintf("Started %d workers", workers),
	}
}

func persistUpdate(step, total, worker int, out PersistOutcome) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Persist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] worker %d: %d stored, %d duplicates", step, total, worker, out.Inserted, out.Duplicates),
		Data:    out,
	}
}

func workerStoppedUpdate(worker int, err error) ProgressUpdate {
	msg := fmt.Sprintf("Worker %d finished", worker)
	if err != nil {
		msg = fmt.Sprintf("✗ worker %d died: %v", worker, err)
	}
	return ProgressUpdate{Phase: WorkerStopped, Message: msg}
}

func shutdownUpdate(alive int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Shutdown,
		Total:   alive,
		Message: fmt.Sprintf("Cancelling, stopping %d workers...", alive),
	}
}

func drainUpdate(b models.Batch) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Drain,
		Total:   len(b),
		Message: fmt.Sprintf("Persisting residual batch of %d files", len(b)),
	}
}

func doneUpdate(r *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    r.Persisted,
		Total:   r.Files,
		Message: fmt.Sprintf("✓ %d fingerprints stored", r.Persisted),
		Data:    r,
	}
}
