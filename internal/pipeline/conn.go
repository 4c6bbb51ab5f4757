package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/desertthunder/musicfp/internal/models"
)

// ErrConnClosed is returned to a worker whose coordinator has closed the connection.
var ErrConnClosed = errors.New("connection closed by coordinator")

// PollState is the outcome of polling a [Conn] for a batch.
type PollState int

const (
	PollTimeout PollState = iota // nothing arrived in time
	PollBatch                    // a batch was received and must be acknowledged
	PollClosed                   // the worker closed its send side
)

func (s PollState) String() string {
	switch s {
	case PollTimeout:
		return "timeout"
	case PollBatch:
		return "batch"
	case PollClosed:
		return "closed"
	default:
		return ""
	}
}

// Conn is the duplex channel between one worker and the coordinator.
//
// The worker sends batches and waits for an acknowledgment after each one. The coordinator polls
// for batches and acknowledges them once persisted.
type Conn struct {
	batches chan models.Batch
	acks    chan struct{}
	closed  chan struct{}

	sendOnce  sync.Once
	closeOnce sync.Once
}

// NewConn creates an open connection.
func NewConn() *Conn {
	return &Conn{
		batches: make(chan models.Batch),
		acks:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// Send hands a batch to the coordinator and blocks until it is acknowledged.
func (c *Conn) Send(ctx context.Context, b models.Batch) error {
	select {
	case c.batches <- b:
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.acks:
		return nil
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend tells the coordinator the worker will send nothing more.
func (c *Conn) CloseSend() {
	c.sendOnce.Do(func() { close(c.batches) })
}

// Poll waits up to timeout for a batch from the worker.
func (c *Conn) Poll(ctx context.Context, timeout time.Duration) (models.Batch, PollState) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b, ok := <-c.batches:
		if !ok {
			return nil, PollClosed
		}
		return b, PollBatch
	case <-timer.C:
		return nil, PollTimeout
	case <-ctx.Done():
		return nil, PollTimeout
	}
}

// TryPoll receives a batch only if one is ready.
func (c *Conn) TryPoll() (models.Batch, PollState) {
	select {
	case b, ok := <-c.batches:
		if !ok {
			return nil, PollClosed
		}
		return b, PollBatch
	default:
		return nil, PollTimeout
	}
}

// Ack releases the worker blocked in Send.
func (c *Conn) Ack() {
	select {
	case c.acks <- struct{}{}:
	default:
	}
}

// Close shuts the connection from the coordinator side. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
