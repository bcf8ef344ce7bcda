package hal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ardnew/sinn7/pkg"
)

// DefaultQueueDepth bounds the number of queued transfers.
const DefaultQueueDepth = 16

// WriteFunc performs one synchronous bulk OUT transfer.
type WriteFunc func(ctx context.Context, ep uint8, data []byte) (int, error)

// ClassifyFunc maps a transport error onto a transfer status.
type ClassifyFunc func(err error) pkg.TransferStatus

type queuedTransfer struct {
	id        TransferID
	ep        uint8
	data      []byte
	done      CompletionFunc
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Queue turns a synchronous write function into an asynchronous,
// cancellable bulk submission channel.
//
// A single worker executes transfers in submission order, so data reaches
// the wire in the order it was submitted. Each transfer completes exactly
// once: with the classified write result, with Cancelled after [Queue.Cancel],
// or with Shutdown when the queue stops.
type Queue struct {
	write    WriteFunc
	classify ClassifyFunc

	// Pending transfers (by ID)
	pending   map[TransferID]*queuedTransfer
	pendingMu sync.Mutex
	running   bool

	nextID uint64
	jobs   chan *queuedTransfer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates a queue holding up to depth transfers. A nil classify
// uses [pkg.StatusFromError].
func NewQueue(depth int, write WriteFunc, classify ClassifyFunc) *Queue {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	if classify == nil {
		classify = pkg.StatusFromError
	}
	return &Queue{
		write:    write,
		classify: classify,
		pending:  make(map[TransferID]*queuedTransfer),
		jobs:     make(chan *queuedTransfer, depth),
	}
}

// Start starts the worker. Transfers run under contexts derived from ctx.
func (q *Queue) Start(ctx context.Context) error {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	if q.running {
		return pkg.ErrBusy
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	q.running = true

	go q.worker()
	return nil
}

// Stop stops the worker and completes every remaining transfer with
// Shutdown. It blocks until the worker has exited.
func (q *Queue) Stop() error {
	q.pendingMu.Lock()
	if !q.running {
		q.pendingMu.Unlock()
		return nil
	}
	q.running = false
	q.pendingMu.Unlock()

	q.cancel()
	<-q.done
	return nil
}

// Submit queues a transfer. It never blocks: a full queue returns
// [pkg.ErrBusy].
func (q *Queue) Submit(ep uint8, data []byte, done CompletionFunc) (TransferID, error) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	if !q.running {
		return 0, pkg.ErrNotRunning
	}

	t := &queuedTransfer{
		id:   TransferID(atomic.AddUint64(&q.nextID, 1)),
		ep:   ep,
		data: data,
		done: done,
	}
	t.ctx, t.cancel = context.WithCancel(q.ctx)

	select {
	case q.jobs <- t:
		q.pending[t.id] = t
		return t.id, nil
	default:
		t.cancel()
		return 0, pkg.ErrBusy
	}
}

// Cancel cancels a pending transfer.
func (q *Queue) Cancel(id TransferID) error {
	q.pendingMu.Lock()
	t, ok := q.pending[id]
	q.pendingMu.Unlock()

	if !ok {
		return nil
	}

	t.cancelled.Store(true)
	t.cancel()
	return nil
}

// PendingCount returns the number of transfers not yet completed.
func (q *Queue) PendingCount() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return len(q.pending)
}

func (q *Queue) worker() {
	defer close(q.done)
	pkg.LogDebug(pkg.ComponentHAL, "transfer worker started")

	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			pkg.LogDebug(pkg.ComponentHAL, "transfer worker stopped")
			return
		case t := <-q.jobs:
			q.execute(t)
		}
	}
}

// drain completes everything left in the job channel. Submit cannot add
// more once running is cleared.
func (q *Queue) drain() {
	for {
		select {
		case t := <-q.jobs:
			q.complete(t, pkg.TransferStatusShutdown, 0)
		default:
			return
		}
	}
}

func (q *Queue) execute(t *queuedTransfer) {
	if t.ctx.Err() != nil {
		q.complete(t, q.abortStatus(t), 0)
		return
	}

	n, err := q.write(t.ctx, t.ep, t.data)
	status := q.classify(err)
	if err != nil && t.ctx.Err() != nil {
		status = q.abortStatus(t)
	}
	if err != nil {
		pkg.LogDebug(pkg.ComponentHAL, "bulk transfer failed",
			"id", t.id, "ep", t.ep, "status", status, "error", err)
	}
	q.complete(t, status, n)
}

func (q *Queue) abortStatus(t *queuedTransfer) pkg.TransferStatus {
	if t.cancelled.Load() {
		return pkg.TransferStatusCancelled
	}
	return pkg.TransferStatusShutdown
}

func (q *Queue) complete(t *queuedTransfer, status pkg.TransferStatus, n int) {
	q.pendingMu.Lock()
	delete(q.pending, t.id)
	q.pendingMu.Unlock()

	t.cancel()
	if t.done != nil {
		t.done(status, n)
	}
}
