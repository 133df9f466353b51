package chat

import (
	"context"
	"sync"
	"time"

	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 64
	defaultIdleTimeout = 5 * time.Minute
)

// Job is a unit of work executed on a location's worker.
type Job func(ctx context.Context)

// Dispatcher runs jobs on one worker goroutine per key. Jobs for the same
// key run in submission order; different keys run in parallel. Idle
// workers exit after IdleTimeout and are recreated on demand.
type Dispatcher struct {
	ctx         context.Context
	log         *zap.Logger
	queueSize   int
	idleTimeout time.Duration

	mu      sync.Mutex
	workers map[string]*worker
	active  int // submitted jobs not yet finished
	wg      sync.WaitGroup
}

type worker struct {
	jobs    chan Job
	pending int // submitted but not yet received; guarded by Dispatcher.mu
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	QueueSize   int           // per-key buffer, defaults to 64
	IdleTimeout time.Duration // defaults to 5m
	Logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher whose workers stop when ctx is done.
func NewDispatcher(ctx context.Context, opts DispatcherOpts) *Dispatcher {
	qs := opts.QueueSize
	if qs <= 0 {
		qs = defaultQueueSize
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &Dispatcher{
		ctx:         ctx,
		log:         logger.OrNop(opts.Logger),
		queueSize:   qs,
		idleTimeout: idle,
		workers:     make(map[string]*worker),
	}
}

// Submit queues job on key's worker. It blocks while the queue is full and
// returns false once the dispatcher's context is done.
func (d *Dispatcher) Submit(key string, job Job) bool {
	if d.ctx.Err() != nil {
		return false
	}

	d.mu.Lock()
	w, ok := d.workers[key]
	if !ok {
		w = &worker{jobs: make(chan Job, d.queueSize)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.run(key, w)
	}
	w.pending++
	d.active++
	d.mu.Unlock()

	select {
	case w.jobs <- job:
		return true
	case <-d.ctx.Done():
		d.mu.Lock()
		w.pending--
		d.active--
		d.mu.Unlock()
		return false
	}
}

// Drain blocks until every submitted job has finished or ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		d.mu.Lock()
		idle := d.active == 0
		d.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.ctx.Done():
			return d.ctx.Err()
		case <-tick.C:
		}
	}
}

// Wait blocks until every worker has exited. Workers exit after the
// dispatcher's context is done.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Workers returns the number of live workers.
func (d *Dispatcher) Workers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) run(key string, w *worker) {
	defer d.wg.Done()
	idle := time.NewTimer(d.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.remove(key, w)
			return
		case job := <-w.jobs:
			d.mu.Lock()
			w.pending--
			d.mu.Unlock()
			d.runJob(key, job)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.idleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if w.pending == 0 {
				delete(d.workers, key)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.idleTimeout)
		}
	}
}

func (d *Dispatcher) runJob(key string, job Job) {
	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
		if r := recover(); r != nil {
			d.log.Error("chat: dispatcher job panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()
	job(d.ctx)
}

func (d *Dispatcher) remove(key string, w *worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers[key] == w {
		delete(d.workers, key)
	}
}
