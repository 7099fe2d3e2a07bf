package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one message body. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
}

// ErrClosed is returned by Publish once the queue is shutting down.
var ErrClosed = errors.New("queue is closed")

// DefaultMaxRetries is how many redeliveries a failing message gets before it is dropped.
const DefaultMaxRetries = 3

// InMemoryQueue delivers messages to in-process subscribers with retry.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	closed   bool
	wg       sync.WaitGroup

	MaxRetries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration

	log zerolog.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: DefaultMaxRetries,
		Backoff:    500 * time.Millisecond,
		log:        log,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish hands the message to every subscriber of topic. Delivery is
// asynchronous and outlives ctx's cancellation.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	handlers := q.handlers[topic]
	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		// Added under mu so Close never observes a delivery it does not wait for.
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.process(detached, h, job{topic: topic, body: body})
		}(handler)
	}
	return nil
}

// process handles retries and errors
func (q *InMemoryQueue) process(ctx context.Context, handler Handler, j job) {
	for {
		err := handler(ctx, j.body)
		if err == nil {
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			q.log.Error().Err(err).Str("topic", j.topic).Int("attempts", j.retryCount).Msg("message permanently failed")
			return
		}
		q.log.Warn().Err(err).Str("topic", j.topic).Int("attempt", j.retryCount).Msg("message failed, retrying")

		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every delivery started so far has finished, including
// deliveries those handlers publish in turn.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Close refuses further publishes and waits for in-flight deliveries.
// Messages handlers try to publish meanwhile are rejected with ErrClosed.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
