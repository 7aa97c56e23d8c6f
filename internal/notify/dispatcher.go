package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
)

const (
	defaultBuffer  = 256
	defaultTimeout = 5 * time.Second
)

// Dispatcher queues events and delivers them to every sink from one worker goroutine.
type Dispatcher struct {
	ch      chan Event
	timeout time.Duration

	mu     sync.RWMutex
	sinks  []Sink
	closed bool

	wg sync.WaitGroup
}

// NewDispatcher starts the delivery worker. buffer and timeout fall back to
// defaults when not positive; timeout bounds each sink delivery.
func NewDispatcher(buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &Dispatcher{
		ch:      make(chan Event, buffer),
		timeout: timeout,
		sinks:   sinks,
	}
	d.wg.Add(1)
	go d.work()
	return d
}

// AddSink registers s for events queued from now on.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Notify implements Notifier. Events are dropped when the queue is full or the
// dispatcher is closed.
func (d *Dispatcher) Notify(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- ev:
	default:
		logger.WarnF("[%s] Notification queue full, dropping %s event", ev.Label(), ev.Kind)
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for ev := range d.ch {
		d.mu.RLock()
		sinks := append([]Sink(nil), d.sinks...)
		d.mu.RUnlock()

		for _, s := range sinks {
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF("[%s] Notification sink %s panicked: %v", ev.Label(), s.Name(), r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := s.Deliver(ctx, ev); err != nil {
		derr := &DeliveryError{Sink: s.Name(), Err: err}
		logger.ErrorF("[%s] %v", ev.Label(), derr)
	}
}

// Close stops accepting events and waits until the queue is drained or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("notification queue not drained"), ctx.Err())
	}
}

// Invoke drains the dispatcher on shutdown.
func (d *Dispatcher) Invoke(ctx context.Context) error {
	logger.Info("Draining notification queue")
	return d.Close(ctx)
}
