package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusy means the write scope could not be acquired within the bounded
// wait. It is transient; the caller decides whether to retry.
var ErrBusy = errors.New("write scope busy")

// DefaultAcquireTimeout is used when a Worker is built without one.
const DefaultAcquireTimeout = 2 * time.Second

type TxFn func(ctx context.Context, tx *sql.Tx) error

const (
	jobPending int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	ctx      context.Context
	fn       TxFn
	state    atomic.Int32
	ch       chan error
	enqueued time.Time
}

// Worker owns every write transaction against the database. Jobs run one at
// a time on a single goroutine, so a TxFn sees no concurrent writer between
// its reads and its writes.
type Worker struct {
	db             *sql.DB
	jobs           chan *job
	quit           chan struct{}
	done           chan struct{}
	acquireTimeout time.Duration
	closeOnce      sync.Once

	// waited observes how long each job sat in the queue. Optional.
	waited func(time.Duration)
}

type WorkerOption func(*Worker)

// WithAcquireTimeout bounds the time a job may wait before it starts.
func WithAcquireTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.acquireTimeout = d
		}
	}
}

// WithWaitObserver reports queue wait per job (metrics hook).
func WithWaitObserver(fn func(time.Duration)) WorkerOption {
	return func(w *Worker) { w.waited = fn }
}

func NewWorker(db *sql.DB, opts ...WorkerOption) *Worker {
	w := &Worker{
		db:             db,
		jobs:           make(chan *job, 256),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		acquireTimeout: DefaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w
}

// Close runs the jobs already queued and stops the worker. Do calls made
// after Close return ErrBusy. The jobs channel is never closed, so a late
// caller cannot panic on send.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
}

// Do runs fn inside one transaction on the worker goroutine and returns once
// it has committed or rolled back.
//
// If the job has not started within the acquire timeout it is withdrawn and
// Do returns ErrBusy. Once a job has started it always runs to commit or
// rollback: cancelling ctx after that point does not interrupt it.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	j := &job{
		ctx:      context.WithoutCancel(ctx),
		fn:       fn,
		ch:       make(chan error, 1),
		enqueued: time.Now(),
	}

	select {
	case <-w.quit:
		return ErrBusy
	default:
	}

	timer := time.NewTimer(w.acquireTimeout)
	defer timer.Stop()

	select {
	case w.jobs <- j:
	case <-w.quit:
		return ErrBusy
	case <-timer.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.ch:
		return err
	case <-w.done:
		// Stopped before picking the job up.
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ErrBusy
		}
	case <-timer.C:
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			w.observe(time.Since(j.enqueued))
			return ErrBusy
		}
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ctx.Err()
		}
	}

	// Already running; wait for the outcome.
	return <-j.ch
}

func (w *Worker) observe(d time.Duration) {
	if w.waited != nil {
		w.waited(d)
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		select {
		case j := <-w.jobs:
			w.handle(j)
		case <-w.quit:
			// Drain what was queued before Close.
			for {
				select {
				case j := <-w.jobs:
					w.handle(j)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) handle(j *job) {
	if !j.state.CompareAndSwap(jobPending, jobRunning) {
		return // caller gave up while queued
	}
	w.observe(time.Since(j.enqueued))
	j.ch <- w.run(j)
}

func (w *Worker) run(j *job) error {
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		if IsBusy(err) {
			return ErrBusy
		}
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := j.fn(j.ctx, tx); err != nil {
		_ = tx.Rollback()
		if IsBusy(err) {
			return fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if IsBusy(err) {
			return fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
