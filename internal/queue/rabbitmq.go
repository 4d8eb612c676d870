package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dlxExchangeName  = "simplesla.dlx"
	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
	heartbeat        = 10 * time.Second

	consumerTagPrefix = "simplesla-notifier-"
)

// RabbitMQ owns the broker connection and declares the completion topology on
// every channel it hands out.
type RabbitMQ struct {
	url    string
	logger *zap.Logger

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := r.connect(dialCtx); err != nil {
		return nil, err
	}

	return r, nil
}

// Connected reports whether the broker connection is currently open.
func (r *RabbitMQ) Connected() bool {
	if r == nil {
		return false
	}
	conn := r.current()
	return conn != nil && !conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	ch, err := r.current().Channel()
	if err != nil {
		r.logger.Warn("rabbitmq channel open failed, reconnecting", zap.Error(err))
		if errReconnect := r.connect(ctx); errReconnect != nil {
			return nil, errReconnect
		}

		ch, err = r.current().Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

// connect dials until a connection is open or ctx is done.
func (r *RabbitMQ) connect(ctx context.Context) error {
	if r.Connected() {
		return nil
	}

	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	for attempt, wait := 1, reconnectBackoff; !r.Connected(); attempt, wait = attempt+1, min(wait*2, maxBackoff) {
		conn, err := amqp.DialConfig(r.url, amqp.Config{
			Heartbeat:  heartbeat,
			Locale:     "en_US",
			Properties: amqp.Table{"connection_name": consumerTagPrefix + "connection"},
		})
		if err == nil {
			r.swap(conn)
			break
		}

		r.logger.Warn("rabbitmq dial failed",
			zap.Int("attempt", attempt),
			zap.Duration("retryIn", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rabbitmq connect canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil
}

// swap installs conn and closes whatever connection it replaces.
func (r *RabbitMQ) swap(conn *amqp.Connection) {
	r.mu.Lock()
	stale := r.conn
	r.conn = conn
	r.mu.Unlock()

	if stale != nil && !stale.IsClosed() {
		_ = stale.Close()
	}
}

// durableQueue describes one durable, non-exclusive queue of the topology.
type durableQueue struct {
	name string
	args amqp.Table
}

// declareTopology declares the dead-letter exchange, the dead-letter queue and
// the completion queue that dead-letters into it. Declarations are idempotent.
func declareTopology(ch *amqp.Channel) error {
	const (
		durable    = true
		autoDelete = false
		exclusive  = false
		internal   = false
		noWait     = false
	)

	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", dlxExchangeName, err)
	}

	deadLetters := DLQName(BuildsCompletedQueue)
	queues := []durableQueue{
		{name: deadLetters},
		{name: BuildsCompletedQueue, args: amqp.Table{
			"x-dead-letter-exchange":    dlxExchangeName,
			"x-dead-letter-routing-key": BuildsCompletedQueue,
		}},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, durable, autoDelete, exclusive, noWait, q.args); err != nil {
			return fmt.Errorf("declare queue %q: %w", q.name, err)
		}
	}

	if err := ch.QueueBind(deadLetters, BuildsCompletedQueue, dlxExchangeName, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", deadLetters, dlxExchangeName, err)
	}

	return nil
}
