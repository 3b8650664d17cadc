package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pcranner/soundshelf/api"
)

// Handler receives playback events. A single controller registers itself
// through SetHandler; callbacks run on the dispatcher's own goroutine, never
// on the emitting goroutine.
type Handler interface {
	OnPositionUpdate(position, duration float64)
	OnTrackEnd()
	OnError(message string)
}

// Dispatcher delivers playback events to the registered handler through a
// buffered channel so emitters never block on a slow controller.
type Dispatcher struct {
	ch      chan api.Event
	done    chan struct{}
	log     zerolog.Logger
	mu      sync.RWMutex
	handler Handler
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		ch:   make(chan api.Event, 16),
		done: make(chan struct{}),
		log:  log,
	}
	d.wg.Add(1)
	go d.deliver()
	return d
}

// SetHandler registers (or replaces) the single subscriber. Events published
// while no handler is registered are discarded.
func (d *Dispatcher) SetHandler(h Handler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// PositionUpdate publishes a position/duration tick.
func (d *Dispatcher) PositionUpdate(position, duration float64) {
	d.publish(api.Event{Type: api.EventPositionUpdate, Position: position, Duration: duration})
}

// TrackEnd publishes a track-end notification.
func (d *Dispatcher) TrackEnd() {
	d.publish(api.Event{Type: api.EventTrackEnd})
}

// Error publishes an error message.
func (d *Dispatcher) Error(message string) {
	d.publish(api.Event{Type: api.EventError, Message: message})
}

// publish is non-blocking; a full channel drops the event rather than stall
// the engine or the tracker.
func (d *Dispatcher) publish(ev api.Event) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return
	}

	select {
	case d.ch <- ev:
	default:
		d.log.Debug().Int("type", int(ev.Type)).Msg("event channel full, dropping event")
	}
}

func (d *Dispatcher) deliver() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.ch:
			d.mu.RLock()
			h := d.handler
			d.mu.RUnlock()
			if h == nil {
				continue
			}

			switch ev.Type {
			case api.EventPositionUpdate:
				h.OnPositionUpdate(ev.Position, ev.Duration)
			case api.EventTrackEnd:
				h.OnTrackEnd()
			case api.EventError:
				h.OnError(ev.Message)
			}
		}
	}
}

// Close stops event delivery. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}
