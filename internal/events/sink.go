package events

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultQueueSize is the maximum number of events that can be queued.
	DefaultQueueSize = 100
)

// Channel delivers events to one destination.
type Channel interface {
	// Name returns the channel name (e.g. "log", "webhook").
	Name() string

	// Supports reports whether the channel handles the given event type.
	Supports(eventType Type) bool

	// Send delivers one event.
	Send(ctx context.Context, event Event) error
}

// Publisher is the emission side of the sink, implemented by Sink and by
// test doubles.
type Publisher interface {
	Publish(event Event)
}

// Sink fans events out to the configured channels. It uses an async bounded
// queue so emission never blocks the operation that produced the event.
type Sink struct {
	channels []Channel
	queue    chan Event
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	done     chan struct{}

	droppedCount int64
	droppedMu    sync.Mutex
}

// NewSink creates a sink with the specified queue size. If queueSize is 0,
// DefaultQueueSize is used.
func NewSink(queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Sink{
		channels: make([]Channel, 0),
		queue:    make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
}

// Register adds a delivery channel to the sink.
func (s *Sink) Register(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, ch)
}

// Channels returns a copy of the registered channels.
func (s *Sink) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make([]Channel, len(s.channels))
	copy(channels, s.channels)
	return channels
}

// Start begins the background delivery worker. This must be called before
// publishing events.
func (s *Sink) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.worker(ctx)
}

// Stop gracefully shuts down the sink. It waits for queued events to be
// delivered.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

// Publish queues an event for delivery. If the queue is full the event is
// dropped and the counter is incremented. This method never blocks.
func (s *Sink) Publish(event Event) {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case s.queue <- event:
	default:
		s.droppedMu.Lock()
		s.droppedCount++
		s.droppedMu.Unlock()

		incrementDroppedCounter()
	}
}

// DroppedCount returns the number of events dropped due to queue overflow.
func (s *Sink) DroppedCount() int64 {
	s.droppedMu.Lock()
	defer s.droppedMu.Unlock()
	return s.droppedCount
}

func (s *Sink) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.drainQueue()
			return
		case <-s.done:
			s.drainQueue()
			return
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			s.dispatch(ctx, event)
		}
	}
}

// drainQueue delivers any remaining events with a short per-event timeout.
func (s *Sink) drainQueue() {
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.dispatch(drainCtx, event)
			cancel()
		default:
			return
		}
	}
}

// dispatch sends an event to every channel that supports it. Channel errors
// are counted but never propagate.
func (s *Sink) dispatch(ctx context.Context, event Event) {
	s.mu.RLock()
	channels := s.channels
	s.mu.RUnlock()

	for _, ch := range channels {
		if !ch.Supports(event.Type) {
			continue
		}
		if err := ch.Send(ctx, event); err != nil {
			incrementDeliveryFailure(ch.Name())
		}
	}
}

// Discard is a Publisher that drops every event. Useful for tests and for
// wiring paths where auditing is disabled.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}
