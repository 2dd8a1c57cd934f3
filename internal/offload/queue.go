package offload

import (
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("offload: queue closed")

// Queue is an in-order execution context bound to one backend device.
// Submitted work runs on a single worker goroutine; the handler given to
// NewQueue receives asynchronous faults when the caller synchronizes with Wait.
type Queue struct {
	backend Backend
	device  Device
	handler FaultHandler

	work    chan func() error
	pending sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	faults    []*Fault
	delivered int

	closeOnce sync.Once
	closeErr  error
}

// NewQueue opens b and starts the queue worker. A nil handler panics with the
// faults it receives.
func NewQueue(b Backend, h FaultHandler) (*Queue, error) {
	dev, err := b.Open()
	if err != nil {
		return nil, err
	}
	if dev.Backend == "" {
		dev.Backend = b.Name()
	}
	if h == nil {
		h = panicHandler
	}
	q := &Queue{
		backend: b,
		device:  dev,
		handler: h,
		work:    make(chan func() error, 16),
	}
	go q.run()
	return q, nil
}

func panicHandler(faults []*Fault) {
	panic(fmt.Sprintf("offload: unhandled asynchronous fault: %v", faults[0]))
}

func (q *Queue) Device() Device { return q.device }

func (q *Queue) Backend() Backend { return q.backend }

func (q *Queue) run() {
	for fn := range q.work {
		q.exec(fn)
		q.pending.Done()
	}
}

func (q *Queue) exec(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			q.raise(&Fault{Status: StatusInvalidOperation, Op: "kernel", Message: fmt.Sprintf("panic: %v", r)})
		}
	}()
	err := fn()
	if err == nil {
		return
	}
	f, ok := AsFault(err)
	if !ok {
		f = &Fault{Status: StatusInvalidOperation, Op: "kernel", Message: err.Error()}
	} else {
		cp := *f
		f = &cp
	}
	q.raise(f)
}

func (q *Queue) raise(f *Fault) {
	f.Async = true
	q.mu.Lock()
	q.faults = append(q.faults, f)
	q.mu.Unlock()
}

// Submit enqueues fn behind all previously submitted work.
func (q *Queue) Submit(fn func() error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending.Add(1)
	q.mu.Unlock()
	q.work <- fn
	return nil
}

// Wait blocks until all submitted work has finished, then passes any
// collected asynchronous faults to the handler.
func (q *Queue) Wait() {
	q.pending.Wait()
	q.mu.Lock()
	faults := q.faults
	q.faults = nil
	q.delivered += len(faults)
	q.mu.Unlock()
	if len(faults) > 0 {
		q.handler(faults)
	}
}

// Delivered returns how many asynchronous faults reached the handler.
func (q *Queue) Delivered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delivered
}

// Close waits for outstanding work, stops the worker and closes the backend.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.Wait()
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.work)
		q.closeErr = q.backend.Close()
	})
	return q.closeErr
}
