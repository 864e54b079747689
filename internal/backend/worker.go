package backend

import (
	"context"
	"errors"
	"sync"
)

var errWorkerClosed = errors.New("backend closed")

// worker runs engine calls on a single dedicated goroutine. Submitting
// callers wait for completion or their context deadline, whichever comes
// first; a call that outlives its deadline keeps running on the worker but
// its result is discarded. A task whose context is already canceled when its
// turn comes is skipped without touching the engine.
type worker struct {
	tasks chan func()
	quit  chan struct{}
	once  sync.Once
}

func newWorker() *worker {
	w := &worker{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	for {
		select {
		case fn := <-w.tasks:
			fn()
		case <-w.quit:
			return
		}
	}
}

func (w *worker) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	task := func() {
		if err := ctx.Err(); err != nil {
			errc <- err
			return
		}
		errc <- fn()
	}
	select {
	case w.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return errWorkerClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return errWorkerClosed
	}
}

func (w *worker) close() {
	w.once.Do(func() { close(w.quit) })
}
