package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ErrQueueStopped is returned when work is submitted to a stopped executor.
var ErrQueueStopped = errors.New("queue stopped")

// Job is a unit of work run by an Executor.
type Job func(ctx context.Context) error

type queuedJob struct {
	name string
	fn   Job
	done chan error
}

// Executor runs jobs one at a time in submission order. The queue is
// unbounded; submission never blocks.
type Executor struct {
	name string

	mu      sync.Mutex
	queue   []*queuedJob
	started bool
	stopped bool

	wake     chan struct{}
	finished chan struct{}
	cancel   context.CancelFunc
}

// NewExecutor creates an idle executor. Jobs may be queued before Start.
func NewExecutor(name string) *Executor {
	return &Executor{
		name:     name,
		wake:     make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
}

// Start launches the worker. Jobs run with a context derived from ctx that is
// not canceled when ctx is; Stop controls their lifetime.
func (x *Executor) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started {
		return
	}
	x.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	x.cancel = cancel
	go x.run(runCtx)
}

// Enqueue submits a job without waiting for it.
func (x *Executor) Enqueue(name string, fn Job) error {
	return x.submit(&queuedJob{name: name, fn: fn})
}

// Do submits a job and waits for its result. If ctx ends first, ctx.Err() is
// returned and the job still runs when its turn comes.
func (x *Executor) Do(ctx context.Context, name string, fn Job) error {
	j := &queuedJob{name: name, fn: fn, done: make(chan error, 1)}
	if err := x.submit(j); err != nil {
		return err
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of waiting jobs.
func (x *Executor) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.queue)
}

// Stop rejects new jobs and waits until every queued job has run. If ctx ends
// first, the running job's context is canceled, remaining jobs are dropped
// and ctx.Err() is returned.
func (x *Executor) Stop(ctx context.Context) error {
	x.mu.Lock()
	x.stopped = true
	started := x.started
	x.mu.Unlock()

	if !started {
		return nil
	}
	x.signal()

	select {
	case <-x.finished:
		x.cancel()
		return nil
	case <-ctx.Done():
		x.cancel()
		<-x.finished
		return ctx.Err()
	}
}

func (x *Executor) submit(j *queuedJob) error {
	x.mu.Lock()
	if x.stopped {
		x.mu.Unlock()
		return fmt.Errorf("%s: %w", x.name, ErrQueueStopped)
	}
	x.queue = append(x.queue, j)
	queueDepth.WithLabelValues(x.name).Set(float64(len(x.queue)))
	x.mu.Unlock()

	x.signal()
	return nil
}

func (x *Executor) signal() {
	select {
	case x.wake <- struct{}{}:
	default:
	}
}

func (x *Executor) run(ctx context.Context) {
	defer close(x.finished)
	logger := log.FromContext(ctx).WithValues("queue", x.name)

	for {
		x.mu.Lock()
		for len(x.queue) == 0 {
			if x.stopped {
				x.mu.Unlock()
				return
			}
			x.mu.Unlock()
			<-x.wake
			x.mu.Lock()
		}
		if ctx.Err() != nil {
			dropped := x.queue
			x.queue = nil
			x.mu.Unlock()
			for _, j := range dropped {
				j.finish(fmt.Errorf("%s: %w", x.name, ErrQueueStopped))
			}
			queueDepth.WithLabelValues(x.name).Set(0)
			logger.Info("dropped queued jobs on shutdown", "count", len(dropped))
			return
		}
		j := x.queue[0]
		x.queue[0] = nil
		x.queue = x.queue[1:]
		queueDepth.WithLabelValues(x.name).Set(float64(len(x.queue)))
		x.mu.Unlock()

		start := time.Now()
		err := x.execute(ctx, j)
		jobsTotal.WithLabelValues(x.name, resultLabel(err)).Inc()
		if err != nil {
			logger.Error(err, "job failed", "job", j.name, "duration", time.Since(start).Round(time.Millisecond))
		} else {
			logger.V(1).Info("job finished", "job", j.name, "duration", time.Since(start).Round(time.Millisecond))
		}
		j.finish(err)
	}
}

func (x *Executor) execute(ctx context.Context, j *queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}

func (j *queuedJob) finish(err error) {
	if j.done != nil {
		j.done <- err
	}
}
