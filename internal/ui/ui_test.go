package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/musicfp/internal/pipeline"
)

// drive feeds the model the messages produced by cmd until the run completes.
func drive(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for i := 0; i < 100 && m.view == RunningView; i++ {
		msg := cmd()
		_, cmd = m.Update(msg)
		if cmd == nil && m.view == RunningView {
			t.Fatal("model stopped waiting for progress while running")
		}
	}
	if m.view != ResultView {
		t.Fatal("run never completed")
	}
}

func TestModel(t *testing.T) {
	t.Run("follows progress to the result view", func(t *testing.T) {
		run := func(ctx context.Context, progress chan<- pipeline.ProgressUpdate) (*pipeline.RunResult, error) {
			progress <- pipeline.ProgressUpdate{Phase: pipeline.Seed, Step: 2, Total: 2, Message: "Queued 15 files in 2 chunks"}
			progress <- pipeline.ProgressUpdate{Phase: pipeline.Persist, Step: 1, Total: 2, Message: "[1/2] worker 1", Data: pipeline.PersistOutcome{Inserted: 10}}
			progress <- pipeline.ProgressUpdate{Phase: pipeline.Persist, Step: 2, Total: 2, Message: "[2/2] worker 2", Data: pipeline.PersistOutcome{Inserted: 4, Duplicates: 1}}
			return &pipeline.RunResult{Files: 15, Chunks: 2, Workers: 2, Persisted: 14, Duplicates: 1}, nil
		}

		m := NewModel(context.Background(), run)
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		drive(t, m, m.startRun())

		if m.chunks != 2 || m.batches != 2 || m.stored != 14 {
			t.Errorf("unexpected counters chunks=%d batches=%d stored=%d", m.chunks, m.batches, m.stored)
		}

		result, err := m.Result()
		if err != nil || result.Persisted != 14 {
			t.Fatalf("unexpected result %+v, %v", result, err)
		}

		view := m.View()
		if !strings.Contains(view, "14 fingerprints stored") {
			t.Errorf("result view missing summary:\n%s", view)
		}
		if len(m.eventList.Items()) != 2 {
			t.Errorf("expected 2 batch events, got %d", len(m.eventList.Items()))
		}

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("q should quit from the result view")
		}
	})

	t.Run("q cancels a running extraction", func(t *testing.T) {
		started := make(chan struct{})
		run := func(ctx context.Context, progress chan<- pipeline.ProgressUpdate) (*pipeline.RunResult, error) {
			close(started)
			<-ctx.Done()
			progress <- pipeline.ProgressUpdate{Phase: pipeline.Shutdown, Message: "Cancelling"}
			return &pipeline.RunResult{Cancelled: true}, nil
		}

		m := NewModel(context.Background(), run)
		cmd := m.startRun()
		<-started

		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		if !m.cancelling {
			t.Fatal("expected cancelling state")
		}
		if !strings.Contains(m.View(), "Cancelling") {
			t.Errorf("running view should show cancellation:\n%s", m.View())
		}

		drive(t, m, cmd)
		result, _ := m.Result()
		if result == nil || !result.Cancelled {
			t.Errorf("expected cancelled result, got %+v", result)
		}
		if !strings.Contains(m.View(), "Cancelled after storing 0") {
			t.Errorf("result view should report cancellation:\n%s", m.View())
		}
	})

	t.Run("shows run errors", func(t *testing.T) {
		run := func(ctx context.Context, progress chan<- pipeline.ProgressUpdate) (*pipeline.RunResult, error) {
			return nil, errors.New("catalog unreachable")
		}

		m := NewModel(context.Background(), run)
		drive(t, m, m.startRun())

		if !strings.Contains(m.View(), "catalog unreachable") {
			t.Errorf("expected error in view:\n%s", m.View())
		}
	})
}

func TestEventItem(t *testing.T) {
	item := eventItem{update: pipeline.ProgressUpdate{Phase: pipeline.Persist, Message: "batch", Data: pipeline.PersistOutcome{Inserted: 3, Duplicates: 2}}}
	if item.Title() != "batch" || !strings.Contains(item.Description(), "3 stored") {
		t.Errorf("unexpected item %q / %q", item.Title(), item.Description())
	}

	stopped := eventItem{update: pipeline.ProgressUpdate{Phase: pipeline.WorkerStopped, Message: "Worker 1 finished"}}
	if stopped.Description() != "worker_stopped" {
		t.Errorf("unexpected description %q", stopped.Description())
	}
}

func TestBar(t *testing.T) {
	if got := styles.bar(0, 0, 0); got != "" {
		t.Errorf("zero width bar should be empty, got %q", got)
	}
	full := styles.bar(3, 3, 10)
	if strings.Count(full, "█") != 10 {
		t.Errorf("expected full bar, got %q", full)
	}
	half := styles.bar(1, 2, 10)
	if strings.Count(half, "█") != 5 || strings.Count(half, "░") != 5 {
		t.Errorf("expected half bar, got %q", half)
	}
}
