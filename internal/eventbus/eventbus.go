// Package eventbus fans task progress events out to WebSocket subscribers.
//
// Grounded on the teacher's internal/events/eventbus.go (buffered channel +
// worker pool + atomic stats + TryPublish non-blocking send + Shutdown with
// timeout), adapted from "fan events in from N producers to M in-process
// consumers" to "fan events out from one producer to N WebSocket
// subscribers" — each subscriber gets its own bounded send queue with
// drop-on-full semantics, since a slow network peer must never stall the
// scheduler emitting progress.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrelmedia/narrationforge/internal/logging"
	"github.com/kestrelmedia/narrationforge/internal/model"
)

var logger = logging.ForService("eventbus")

// Stats mirrors the teacher's EventBus atomic counters, renamed to this
// domain's terms.
type Stats struct {
	EventsPublished  int64
	EventsSuppressed int64 // dropped because the bus's own inbound buffer was full
	EventsDelivered  int64
	EventsDropped    int64 // dropped because a subscriber's own queue was full
}

// Config mirrors the teacher's events.Config shape.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig matches the teacher's events.DefaultConfig values.
func DefaultConfig() Config {
	return Config{BufferSize: 10000, Workers: 4}
}

// Bus broadcasts model.TaskState updates to subscribed WebSocket
// connections.
type Bus struct {
	cfg      Config
	eventCh  chan model.TaskState
	subs     sync.Map // subscriberID -> *subscriber
	nextSub  atomic.Int64
	stats    Stats
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	startOnce sync.Once
}

type subscriber struct {
	id     int64
	conn   *websocket.Conn
	sendCh chan model.TaskState
	done   chan struct{}
}

// New creates a Bus with the given configuration.
func New(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Bus{
		cfg:     cfg,
		eventCh: make(chan model.TaskState, cfg.BufferSize),
	}
}

// Start launches the worker pool that drains eventCh and fans each event
// out to every current subscriber.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.ctx, b.cancel = context.WithCancel(ctx)
		for i := 0; i < b.cfg.Workers; i++ {
			b.wg.Add(1)
			go b.worker(i)
		}
	})
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in eventbus worker", "worker_id", id, "panic", r)
		}
	}()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventCh:
			if !ok {
				return
			}
			b.fanOut(event)
		}
	}
}

func (b *Bus) fanOut(event model.TaskState) {
	b.subs.Range(func(_, v any) bool {
		sub := v.(*subscriber)
		select {
		case sub.sendCh <- event:
			atomic.AddInt64(&b.stats.EventsDelivered, 1)
		default:
			atomic.AddInt64(&b.stats.EventsDropped, 1)
			logger.Warn("dropping event for slow subscriber", "subscriber_id", sub.id)
		}
		return true
	})
}

// Publish enqueues event for delivery without blocking; if the bus's
// internal buffer is full the event is dropped and EventsSuppressed is
// incremented, mirroring the teacher's TryPublish.
func (b *Bus) Publish(event model.TaskState) {
	atomic.AddInt64(&b.stats.EventsPublished, 1)
	select {
	case b.eventCh <- event:
	default:
		atomic.AddInt64(&b.stats.EventsSuppressed, 1)
		logger.Warn("eventbus buffer full, dropping event", "scope", event.Scope, "task_id", event.TaskID)
	}
}

// Subscribe registers a WebSocket connection to receive future events and
// starts its per-connection writer goroutine. The returned unsubscribe
// function must be called when the connection closes.
func (b *Bus) Subscribe(conn *websocket.Conn, queueSize int) (unsubscribe func()) {
	if queueSize <= 0 {
		queueSize = 256
	}
	id := b.nextSub.Add(1)
	sub := &subscriber{
		id:     id,
		conn:   conn,
		sendCh: make(chan model.TaskState, queueSize),
		done:   make(chan struct{}),
	}
	b.subs.Store(id, sub)

	b.wg.Add(1)
	go b.writeLoop(sub)

	return func() {
		b.subs.Delete(id)
		close(sub.done)
	}
}

func (b *Bus) writeLoop(sub *subscriber) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in subscriber writer", "subscriber_id", sub.id, "panic", r)
		}
	}()

	for {
		select {
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		case event := <-sub.sendCh:
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to marshal task state", "subscriber_id", sub.id, "error", err)
				continue
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("subscriber write failed, closing", "subscriber_id", sub.id, "error", err)
				b.subs.Delete(sub.id)
				return
			}
		}
	}
}

// Stats returns a snapshot of the bus's counters.
func (b *Bus) Stats() Stats {
	return Stats{
		EventsPublished:  atomic.LoadInt64(&b.stats.EventsPublished),
		EventsSuppressed: atomic.LoadInt64(&b.stats.EventsSuppressed),
		EventsDelivered:  atomic.LoadInt64(&b.stats.EventsDelivered),
		EventsDropped:    atomic.LoadInt64(&b.stats.EventsDropped),
	}
}

// Shutdown cancels the worker pool and waits up to timeout for it to drain,
// mirroring the teacher's EventBus.Shutdown.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		logger.Warn("eventbus shutdown timed out")
		return context.DeadlineExceeded
	}
}
