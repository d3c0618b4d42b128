package cnode

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/logging"
)

// TaskPool runs best-effort background tasks: work the caller explicitly does
// not wait on, like notifying peers or re-materializing content after a read
// miss. Failures go to the error channel and are logged, never returned to the
// submitter - that is the contract, made explicit.
type TaskPool struct {
	tasks chan task
	errs  chan error
	stop  chan struct{}

	submitted *atomic.Int64
	dropped   *atomic.Int64
	failed    *atomic.Int64
}

type task struct {
	name string
	fn   func() error
}

func NewTaskPool(workers, queueSize int) *TaskPool {
	if workers <= 0 {
		workers = 1
	}
	p := &TaskPool{
		tasks:     make(chan task, queueSize),
		errs:      make(chan error, queueSize),
		stop:      make(chan struct{}),
		submitted: atomic.NewInt64(0),
		dropped:   atomic.NewInt64(0),
		failed:    atomic.NewInt64(0),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	go p.drainErrors()
	return p
}

func (p *TaskPool) worker() {
	for {
		select {
		case t := <-p.tasks:
			if err := t.fn(); err != nil {
				p.failed.Inc()
				select {
				case p.errs <- err:
				default:
				}
				logging.Logger.Warn("background task failed",
					zap.String("task", t.name),
					zap.Error(err),
				)
			}
		case <-p.stop:
			return
		}
	}
}

func (p *TaskPool) drainErrors() {
	for {
		select {
		case <-p.errs:
			// Already logged at the worker; drained so the channel cannot
			// back up when nobody reads it.
		case <-p.stop:
			return
		}
	}
}

// Submit enqueues fn without blocking. A full queue drops the task: these are
// fire-and-forget side calls, load-shedding beats backpressure here.
func (p *TaskPool) Submit(name string, fn func() error) bool {
	select {
	case p.tasks <- task{name: name, fn: fn}:
		p.submitted.Inc()
		return true
	default:
		p.dropped.Inc()
		logging.Logger.Warn("background task dropped, queue full", zap.String("task", name))
		return false
	}
}

func (p *TaskPool) Stop() {
	close(p.stop)
}

// Stats - submitted, dropped and failed task counts since start.
func (p *TaskPool) Stats() (submitted, dropped, failed int64) {
	return p.submitted.Load(), p.dropped.Load(), p.failed.Load()
}
