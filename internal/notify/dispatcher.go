package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrDispatcherFull is returned when the buffer has no room for an event.
var ErrDispatcherFull = errors.New("notification buffer full")

// ErrDispatcherClosed is returned after Close.
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

const sendTimeout = 30 * time.Second

// Deliverer handles one event.
type Deliverer interface {
	Deliver(ctx context.Context, event Event) error
}

// Dispatcher delivers events on background goroutines from a bounded buffer.
// Notify never blocks; a full buffer drops the event.
type Dispatcher struct {
	deliverer Deliverer
	log       zerolog.Logger

	mu     sync.RWMutex
	closed bool
	events chan Event
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines draining a buffer of size buffer.
func NewDispatcher(deliverer Deliverer, buffer, workers int, log zerolog.Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		deliverer: deliverer,
		log:       log.With().Str("component", "dispatcher").Logger(),
		events:    make(chan Event, buffer),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Notify queues event for delivery.
func (d *Dispatcher) Notify(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.events <- event:
		return nil
	default:
		return ErrDispatcherFull
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		// Deliver logs its own failures.
		_ = d.deliverer.Deliver(ctx, event)
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	d.wg.Wait()
	d.log.Debug().Msg("dispatcher drained")
}
