package lifecycle

import (
	"context"
	"sync"

	"waterflow.dev/waterflow/internal/output"
)

// Request identifies one logical unit of work: a pull request at a specific
// revision. Re-submitting the same request while one is pending is collapsed.
type Request struct {
	PRID     int
	Revision string
}

// Runner executes one request to completion.
type Runner func(ctx context.Context, req Request) Outcome

// Worker is a single-consumer FIFO job queue. Jobs run strictly
// sequentially, each to completion, because every job assumes exclusive
// ownership of the working clone.
type Worker struct {
	mu       sync.Mutex
	pending  []Request
	enqueued map[Request]bool
	wake     chan struct{}

	runner   Runner
	snapshot *Snapshot
	log      *output.Splog
}

// NewWorker creates a worker around the given runner and snapshot.
func NewWorker(runner Runner, snapshot *Snapshot, log *output.Splog) *Worker {
	return &Worker{
		enqueued: make(map[Request]bool),
		wake:     make(chan struct{}, 1),
		runner:   runner,
		snapshot: snapshot,
		log:      log,
	}
}

// Submit appends a request to the queue. Returns false when an identical
// request is already pending.
func (w *Worker) Submit(req Request) bool {
	w.mu.Lock()
	if w.enqueued[req] {
		w.mu.Unlock()
		return false
	}
	w.enqueued[req] = true
	w.pending = append(w.pending, req)
	w.snapshot.setPending(len(w.pending))
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// Run consumes the queue until the context is canceled. There is no mid-job
// cancellation: a started job always runs to its terminal outcome.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, ok := w.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
				continue
			}
		}
		out := w.runner(ctx, req)
		w.snapshot.recordOutcome(req.PRID, out)
		if out.Kind == OutcomeInternalError {
			w.log.Error("job failed", "pr", req.PRID, "error", out.Err)
		} else {
			w.log.Info("job finished", "pr", req.PRID, "outcome", out.Message)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (w *Worker) pop() (Request, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return Request{}, false
	}
	req := w.pending[0]
	w.pending = w.pending[1:]
	delete(w.enqueued, req)
	w.snapshot.setPending(len(w.pending))
	return req, true
}
