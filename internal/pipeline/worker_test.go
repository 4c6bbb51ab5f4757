package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
	tu "github.com/desertthunder/musicfp/internal/testing"
)

func newTestWorker(t *testing.T, base string, fp *tu.FakeFingerprinter, chunks ...models.Chunk) *Worker {
	t.Helper()

	q, err := NewWorkQueue(len(chunks) + 1)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	for _, c := range chunks {
		if err := q.Put(c); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
	}
	q.Close()

	return &Worker{
		ID:           1,
		queue:        q,
		conn:         NewConn(),
		fp:           fp,
		basePath:     base,
		queueTimeout: 100 * time.Millisecond,
		counters:     &fileCounters{},
		logger:       shared.NewLogger(io.Discard),
	}
}

func TestWorker(t *testing.T) {
	t.Run("skips missing and unreadable files", func(t *testing.T) {
		base := t.TempDir()
		good := tu.NewFile("1", "x/good.mp3")
		broken := tu.NewFile("2", "x/broken.mp3")
		missing := tu.NewFile("3", "x/missing.mp3")
		tu.WriteMediaFiles(t, base, good, broken)

		fp := &tu.FakeFingerprinter{Fail: map[string]bool{"broken.mp3": true}}
		w := newTestWorker(t, base, fp, models.Chunk{Files: []models.FileDescriptor{good, broken, missing}})

		done := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(done)
		}()

		batch, state := w.conn.Poll(context.Background(), time.Second)
		if state != PollBatch {
			t.Fatalf("expected a batch, got %v", state)
		}
		if len(batch) != 1 || batch[0].File.ID != "1" {
			t.Errorf("expected only the readable file, got %v", batch.IDs())
		}
		w.conn.Ack()

		if _, state := w.conn.Poll(context.Background(), time.Second); state != PollClosed {
			t.Errorf("expected worker to close its send side, got %v", state)
		}
		<-done

		if got := w.counters.missing.Load(); got != 1 {
			t.Errorf("missing = %d, want 1", got)
		}
		if got := w.counters.failed.Load(); got != 1 {
			t.Errorf("failed = %d, want 1", got)
		}
	})

	t.Run("holds at most one unacknowledged batch", func(t *testing.T) {
		base := t.TempDir()
		first := []models.FileDescriptor{tu.NewFile("1", "x/01.mp3"), tu.NewFile("2", "x/02.mp3")}
		second := []models.FileDescriptor{tu.NewFile("3", "x/03.mp3")}
		tu.WriteMediaFiles(t, base, append(first, second...)...)

		fp := &tu.FakeFingerprinter{}
		w := newTestWorker(t, base, fp, models.Chunk{Seq: 0, Files: first}, models.Chunk{Seq: 1, Files: second})

		done := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(done)
		}()

		if _, state := w.conn.Poll(context.Background(), time.Second); state != PollBatch {
			t.Fatalf("expected first batch, got %v", state)
		}

		if _, state := w.conn.Poll(context.Background(), 100*time.Millisecond); state != PollTimeout {
			t.Fatalf("worker sent another batch before acknowledgment: %v", state)
		}
		if calls := fp.Calls(); calls != len(first) {
			t.Errorf("worker fingerprinted %d files while waiting for ack, want %d", calls, len(first))
		}

		w.conn.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not exit after the connection closed")
		}
	})

	t.Run("drops the partial chunk on cancellation", func(t *testing.T) {
		base := t.TempDir()
		a, b := tu.NewFile("1", "x/a.mp3"), tu.NewFile("2", "x/b.mp3")
		tu.WriteMediaFiles(t, base, a, b)

		fp := &tu.FakeFingerprinter{Block: map[string]bool{"b.mp3": true}}
		w := newTestWorker(t, base, fp, models.Chunk{Files: []models.FileDescriptor{a, b}})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()

		time.AfterFunc(50*time.Millisecond, cancel)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not exit after cancellation")
		}

		if _, state := w.conn.TryPoll(); state != PollClosed {
			t.Errorf("expected closed send side and no batch, got %v", state)
		}
		if fp.Active() != 0 {
			t.Errorf("expected no running extraction, got %d", fp.Active())
		}
	})

	t.Run("rate limiter stops on cancellation", func(t *testing.T) {
		base := t.TempDir()
		a := tu.NewFile("1", "x/a.mp3")
		tu.WriteMediaFiles(t, base, a)

		fp := &tu.FakeFingerprinter{}
		w := newTestWorker(t, base, fp)
		w.limiter = rate.NewLimiter(rate.Limit(1), 1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if batch := w.process(ctx, models.Chunk{Files: []models.FileDescriptor{a}}); len(batch) != 0 {
			t.Errorf("expected empty batch, got %d results", len(batch))
		}
		if fp.Calls() != 0 {
			t.Errorf("expected no extraction, got %d calls", fp.Calls())
		}
	})
}
