package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/musicfp/internal/catalog"
	"github.com/desertthunder/musicfp/internal/fingerprint"
	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

// ErrWorkerDied wraps the panic value of a worker that terminated abnormally.
var ErrWorkerDied = errors.New("worker died")

// Options configures a [Coordinator] run.
type Options struct {
	BasePath        string        // filesystem root that catalog paths are relative to
	Subtree         string        // catalog-relative subtree to process; empty means everything
	ChunkSize       int           // files per chunk
	Workers         int           // pool size upper bound; 0 means runtime.NumCPU()
	Extensions      []string      // audio extensions to fingerprint; empty keeps all
	QueueTimeout    time.Duration // how long a worker waits for a chunk
	PollTimeout     time.Duration // how long the coordinator waits on each worker per cycle
	ShutdownTimeout time.Duration // how long cancellation waits for workers to exit
	RateLimit       float64       // extractions per second per worker; 0 disables
}

// OptionsFromConfig builds run options from the extract section of the configuration.
func OptionsFromConfig(cfg shared.ExtractConfig) Options {
	return Options{
		BasePath:        cfg.BasePath,
		ChunkSize:       cfg.ChunkSize,
		Workers:         cfg.Workers,
		Extensions:      cfg.Extensions,
		QueueTimeout:    cfg.QueueTimeout.Duration,
		PollTimeout:     cfg.PollTimeout.Duration,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration,
		RateLimit:       cfg.RateLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.QueueTimeout <= 0 {
		o.QueueTimeout = 30 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	return o
}

func (o Options) validate() error {
	if o.BasePath == "" {
		return fmt.Errorf("%w: base path", shared.ErrMissingArgument)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", shared.ErrInvalidConfig, o.ChunkSize)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: worker count must not be negative, got %d", shared.ErrInvalidConfig, o.Workers)
	}
	if o.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", shared.ErrInvalidConfig)
	}
	return nil
}

// RunResult summarises one extraction run.
type RunResult struct {
	Files       int  `json:"files"`        // files queued after the extension filter
	Chunks      int  `json:"chunks"`       // chunks enqueued
	Workers     int  `json:"workers"`      // pool size
	Batches     int  `json:"batches"`      // batches received and persisted
	Persisted   int  `json:"persisted"`    // new cache rows
	Duplicates  int  `json:"duplicates"`   // rows already cached
	Conflicts   int  `json:"conflicts"`    // paths cached under another id
	Invalid     int  `json:"invalid"`      // results dropped for missing tags
	Missing     int  `json:"missing"`      // files not found on disk
	Failed      int  `json:"failed"`       // files the fingerprinter rejected
	Flagged     int  `json:"flagged"`      // catalog records flagged fingerprinted
	SinkErrors  int  `json:"sink_errors"`  // batches that could not be fully persisted
	DeadWorkers int  `json:"dead_workers"` // workers that terminated abnormally
	Cancelled   bool `json:"cancelled"`
}

func (r *RunResult) add(out PersistOutcome) {
	r.Persisted += out.Inserted
	r.Duplicates += out.Duplicates
	r.Conflicts += out.Conflicts
	r.Invalid += out.Invalid
	r.Flagged += int(out.Flagged)
}

// workerHandle is the coordinator's view of one worker. alive is only touched by the coordinator.
type workerHandle struct {
	id    int
	conn  *Conn
	done  chan struct{} // closed when the worker goroutine returns
	err   error         // set before done is closed when the worker panicked
	alive bool
}

func (h *workerHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Coordinator owns the work queue and the worker pool of an extraction run.
type Coordinator struct {
	catalog  catalog.Catalog
	fp       fingerprint.Fingerprinter
	sink     *Sink
	opts     Options
	logger   *log.Logger
	progress chan<- ProgressUpdate
}

// NewCoordinator creates a Coordinator. Persistence goes through sink; pending files come from cat.
func NewCoordinator(cat catalog.Catalog, fp fingerprint.Fingerprinter, sink *Sink, opts Options, logger *log.Logger) *Coordinator {
	return &Coordinator{catalog: cat, fp: fp, sink: sink, opts: opts.withDefaults(), logger: logger}
}

// WithProgress sets a channel that receives non-blocking progress updates.
func (c *Coordinator) WithProgress(progress chan<- ProgressUpdate) *Coordinator {
	c.progress = progress
	return c
}

// Run fingerprints every pending file under the configured subtree.
//
// Configuration and catalog errors are returned before any worker starts. Per-file and per-batch
// failures are counted in the result. Cancelling ctx stops the pool and returns what was
// persisted so far with Cancelled set; it is not an error.
func (c *Coordinator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}
	if err := c.opts.validate(); err != nil {
		return result, err
	}

	filter := catalog.Filter{PathPrefix: c.opts.Subtree}
	pending, err := c.catalog.Count(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}
	if pending == 0 {
		c.logger.Info("no pending files", "subtree", filter.Prefix())
		sendProgress(c.progress, doneUpdate(result))
		return result, nil
	}

	files, err := c.catalog.Find(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}

	queue, chunks, err := c.seed(files)
	if err != nil {
		return result, err
	}
	for _, chunk := range chunks {
		result.Files += chunk.Len()
	}
	if len(chunks) == 0 {
		c.logger.Info("no audio files among pending records", "pending", len(files))
		sendProgress(c.progress, doneUpdate(result))
		return result, nil
	}

	result.Chunks = queue.Enqueued()
	size := min(c.opts.Workers, result.Chunks)
	if size <= 0 {
		return result, fmt.Errorf("%w: cannot start %d workers", shared.ErrInvalidConfig, size)
	}
	result.Workers = size
	sendProgress(c.progress, seedUpdate(result.Files, result.Chunks))

	counters := &fileCounters{}
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var g errgroup.Group
	handles := make([]*workerHandle, 0, size)
	for i := range size {
		handles = append(handles, c.spawn(workerCtx, &g, i+1, queue, counters))
	}
	c.logger.Info("started workers", "workers", size, "chunks", result.Chunks, "files", result.Files)
	sendProgress(c.progress, spawnUpdate(size))

	if cancelled := c.poll(ctx, handles, result); cancelled {
		result.Cancelled = true
		c.shutdown(handles, result, cancelWorkers, &g)
	} else {
		if err := g.Wait(); err != nil {
			c.logger.Debug("worker pool finished with errors", "error", err)
		}
		c.drain(handles, result)
	}

	result.Missing = int(counters.missing.Load())
	result.Failed = int(counters.failed.Load())
	sendProgress(c.progress, doneUpdate(result))
	return result, nil
}

// seed chunks the files and enqueues every chunk before any worker starts.
func (c *Coordinator) seed(files []models.FileDescriptor) (*WorkQueue, []models.Chunk, error) {
	chunks := ChunkFiles(files, c.opts.ChunkSize, c.opts.Extensions)
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	queue, err := NewWorkQueue(len(files))
	if err != nil {
		return nil, nil, err
	}
	for _, chunk := range chunks {
		if err := queue.Put(chunk); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
	}
	queue.Close()

	return queue, chunks, nil
}

func (c *Coordinator) spawn(ctx context.Context, g *errgroup.Group, id int, queue *WorkQueue, counters *fileCounters) *workerHandle {
	h := &workerHandle{id: id, conn: NewConn(), done: make(chan struct{}), alive: true}

	w := &Worker{
		ID:           id,
		queue:        queue,
		conn:         h.conn,
		fp:           c.fp,
		basePath:     c.opts.BasePath,
		queueTimeout: c.opts.QueueTimeout,
		counters:     counters,
		logger:       shared.WithLogger(c.logger, "worker", id),
	}
	if c.opts.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(c.opts.RateLimit), 1)
	}

	g.Go(func() (err error) {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: worker %d: %v", ErrWorkerDied, id, r)
				h.err = err
			}
		}()
		w.Run(ctx)
		return nil
	})
	return h
}

// poll cycles over live workers until all have stopped or ctx is cancelled, reporting whether it
// was cancelled.
func (c *Coordinator) poll(ctx context.Context, handles []*workerHandle, result *RunResult) bool {
	alive := len(handles)
	for alive > 0 {
		for _, h := range handles {
			if ctx.Err() != nil {
				return true
			}
			if !h.alive {
				continue
			}

			if h.exited() {
				c.stop(h, result)
				alive--
				continue
			}

			batch, state := h.conn.Poll(ctx, c.opts.PollTimeout)
			switch state {
			case PollBatch:
				c.persist(ctx, h.id, batch, result)
				h.conn.Ack()
			case PollClosed:
				<-h.done
				c.stop(h, result)
				alive--
			}
		}
	}
	return false
}

// stop marks a worker stopped and records whether it died.
func (c *Coordinator) stop(h *workerHandle, result *RunResult) {
	h.alive = false
	if h.err != nil {
		result.DeadWorkers++
		c.logger.Error("worker died", "worker", h.id, "error", h.err)
	} else {
		c.logger.Debug("worker finished", "worker", h.id)
	}
	sendProgress(c.progress, workerStoppedUpdate(h.id, h.err))
}

// persist writes a received batch. The write is not cancelled with the run so a batch that
// reached the coordinator is committed before the worker is acknowledged.
func (c *Coordinator) persist(ctx context.Context, worker int, batch models.Batch, result *RunResult) {
	out, err := c.sink.Persist(context.WithoutCancel(ctx), batch)
	result.Batches++
	result.add(out)
	if err != nil {
		result.SinkErrors++
		c.logger.Error("failed to persist batch", "worker", worker, "files", len(batch), "error", err)
	} else {
		c.logger.Info("persisted batch", "worker", worker, "inserted", out.Inserted, "duplicates", out.Duplicates)
	}
	sendProgress(c.progress, persistUpdate(result.Batches, result.Chunks, worker, out))
}

// shutdown closes every connection, cancels the workers and waits for them to exit.
func (c *Coordinator) shutdown(handles []*workerHandle, result *RunResult, cancelWorkers context.CancelFunc, g *errgroup.Group) {
	alive := 0
	for _, h := range handles {
		h.conn.Close()
		if !h.exited() {
			alive++
		}
	}
	cancelWorkers()
	c.logger.Warn("cancelling extraction", "running", alive)
	sendProgress(c.progress, shutdownUpdate(alive))

	exited := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(c.opts.ShutdownTimeout):
		for _, h := range handles {
			if !h.exited() {
				c.logger.Error("worker did not exit", "worker", h.id, "timeout", c.opts.ShutdownTimeout)
			}
		}
	}

	for _, h := range handles {
		if h.alive && h.exited() {
			c.stop(h, result)
		}
	}
}

// drain persists any batch still waiting on a connection after the pool stopped.
func (c *Coordinator) drain(handles []*workerHandle, result *RunResult) {
	for _, h := range handles {
		batch, state := h.conn.TryPoll()
		if state != PollBatch {
			continue
		}
		sendProgress(c.progress, drainUpdate(batch))
		c.persist(context.Background(), h.id, batch, result)
		h.conn.Ack()
	}
}
