package pipeline

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/musicfp/internal/fingerprint"
	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

// fileCounters accumulates per-file failures across the pool.
type fileCounters struct {
	missing atomic.Int64
	failed  atomic.Int64
}

// Worker claims chunks from a [WorkQueue], fingerprints every file and returns the results over
// its [Conn].
type Worker struct {
	ID           int
	queue        *WorkQueue
	conn         *Conn
	fp           fingerprint.Fingerprinter
	basePath     string
	queueTimeout time.Duration
	limiter      *rate.Limiter
	counters     *fileCounters
	logger       *log.Logger
}

// Run processes chunks until the queue is drained, the coordinator closes the connection or ctx
// is cancelled. The send side of the connection is closed on return.
//
// A panic escapes Run without closing the send side; the coordinator reports it as a dead worker.
func (w *Worker) Run(ctx context.Context) {
	for {
		chunk, ok := w.queue.Get(ctx, w.queueTimeout)
		if !ok {
			break
		}

		batch := w.process(ctx, chunk)
		if ctx.Err() != nil {
			w.logger.Debug("dropping partial chunk", "chunk", chunk.Seq, "results", len(batch))
			break
		}
		if len(batch) == 0 {
			continue
		}

		if err := w.conn.Send(ctx, batch); err != nil {
			w.logger.Debug("batch not acknowledged", "chunk", chunk.Seq, "error", err)
			break
		}
	}
	w.conn.CloseSend()
}

// process fingerprints every file in the chunk, skipping missing and unreadable files.
func (w *Worker) process(ctx context.Context, chunk models.Chunk) models.Batch {
	batch := make(models.Batch, 0, chunk.Len())

	for _, f := range chunk.Files {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return batch
			}
		}

		path := shared.ResolveFile(w.basePath, f.Path)
		if _, err := os.Stat(path); err != nil {
			w.counters.missing.Add(1)
			if errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("file does not exist", "path", path)
			} else {
				w.logger.Warn("cannot stat file", "path", path, "error", err)
			}
			continue
		}

		fp, err := w.fp.Extract(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return batch
			}
			w.counters.failed.Add(1)
			w.logger.Warn("could not fingerprint file", "path", path, "error", err)
			continue
		}
		if fp.Empty() {
			w.counters.failed.Add(1)
			w.logger.Warn("empty fingerprint", "path", path)
			continue
		}

		batch = append(batch, models.FingerprintResult{File: f, Fingerprint: fp})
	}

	return batch
}
