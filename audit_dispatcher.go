package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples audit emission from request handling. Events
// queue up and a single goroutine feeds them to the sink; in drop mode a
// full queue increments a counter instead of blocking the credential path.
type auditDispatcher struct {
	sink    AuditSink
	block   bool // false: drop-and-count when the queue is full
	queue   chan AuditEvent
	stop    chan struct{}
	stopped atomic.Bool
	dropped atomic.Uint64
	once    sync.Once
	idle    sync.WaitGroup
}

// newAuditDispatcher returns nil when auditing is disabled; the nil
// receiver is safe on every method.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:  sink,
		block: !cfg.DropIfFull,
		queue: make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:  make(chan struct{}),
	}
	d.idle.Add(1)
	go d.pump()

	return d
}

func (d *auditDispatcher) pump() {
	defer d.idle.Done()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers whatever is still queued at shutdown.
func (d *auditDispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.block {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		case <-d.stop:
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.stop:
	default:
		d.dropped.Add(1)
	}
}

// Close stops intake, drains the queue, and waits for the pump goroutine.
// Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.idle.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
