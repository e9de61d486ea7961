// Package dispatch serializes inbound chat messages per phone on a fixed set of workers.
package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
)

var ErrStopped = errors.New("dispatcher stopped")

// Handler processes one message. It is never called concurrently for the same phone.
type Handler func(ctx context.Context, phone, text string) error

type Metrics interface {
	ObserveInbound(outcome string)
}

type message struct {
	ctx   context.Context
	phone string
	text  string
}

// Dispatcher hashes phones onto shards. Each shard has one consumer goroutine, so
// messages of a phone run in arrival order while different shards run in parallel.
type Dispatcher struct {
	shards  []chan message
	handler Handler
	metrics Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func New(shards, queueSize int, handler Handler, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if shards < 1 {
		shards = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	d := &Dispatcher{
		shards:  make([]chan message, shards),
		handler: handler,
		metrics: metrics,
		logger:  logger,
	}
	for i := range d.shards {
		d.shards[i] = make(chan message, queueSize)
	}
	return d
}

func (d *Dispatcher) Name() string {
	return "dispatcher"
}

// Start launches one consumer per shard.
func (d *Dispatcher) Start() error {
	for i, queue := range d.shards {
		d.wg.Add(1)
		go d.consume(i, queue)
	}
	d.logger.Info("Dispatcher started", "shards", len(d.shards))
	return nil
}

// Submit enqueues a message, blocking while the shard queue is full. The handler gets
// a context detached from ctx cancellation.
func (d *Dispatcher) Submit(ctx context.Context, phone, text string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	msg := message{ctx: context.WithoutCancel(ctx), phone: phone, text: text}
	select {
	case d.shards[d.shardOf(phone)] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queues and waits for queued messages to drain.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	for _, queue := range d.shards {
		close(queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
	return nil
}

func (d *Dispatcher) shardOf(phone string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phone))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) consume(shard int, queue <-chan message) {
	defer d.wg.Done()
	for msg := range queue {
		d.handle(shard, msg)
	}
}

func (d *Dispatcher) handle(shard int, msg message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while handling message", "shard", shard, "phone", msg.phone, "panic", r)
			d.observe("panic")
		}
	}()

	if err := d.handler(msg.ctx, msg.phone, msg.text); err != nil {
		d.logger.Error("Failed to handle message", "shard", shard, "phone", msg.phone, "error", err)
		d.observe("error")
		return
	}
	d.observe("ok")
}

func (d *Dispatcher) observe(outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveInbound(outcome)
	}
}
