package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	minRedialDelay = 500 * time.Millisecond
	maxRedialDelay = 30 * time.Second
)

var errNotConnected = errors.New("not connected to RabbitMQ")

// Dial connects to RabbitMQ and declares the exchange. The returned connection redials whenever the
// broker closes the connection or the channel until Close is called. Publishing while redialing
// fails.
func Dial(logger *slog.Logger, uri, exchange string) (*Connection, error) {
	c := &Connection{
		logger:   logger,
		uri:      uri,
		exchange: exchange,
		closing:  make(chan struct{}),
		watched:  make(chan struct{}),
	}

	closed, err := c.connect()
	if err != nil {
		return nil, err
	}

	go c.watch(closed)
	return c, nil
}

type Connection struct {
	logger   *slog.Logger
	uri      string
	exchange string

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closeOnce sync.Once
	closing   chan struct{}
	watched   chan struct{}
}

func (c *Connection) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()

	if channel == nil {
		return errNotConnected
	}
	return channel.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

// Close stops redialing and closes the current connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		<-c.watched

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.conn, c.channel = nil, nil
	})
	return err
}

// connect opens a connection and a channel and returns a channel receiving once either is closed.
func (c *Connection) connect() (<-chan *amqp.Error, error) {
	conn, err := amqp.Dial(c.uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %v", err)
	}

	if err := DeclareExchange(channel, c.exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	channelClosed := channel.NotifyClose(make(chan *amqp.Error, 1))
	closed := make(chan *amqp.Error, 1)
	go func() {
		select {
		case err := <-connClosed:
			closed <- err
		case err := <-channelClosed:
			closed <- err
		}
	}()

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return closed, nil
}

func (c *Connection) watch(closed <-chan *amqp.Error) {
	defer close(c.watched)

	for {
		select {
		case <-c.closing:
			return
		case err := <-closed:
			c.logger.Error("RabbitMQ connection lost, redialing", "error", err)
		}

		c.mu.Lock()
		conn := c.conn
		c.conn, c.channel = nil, nil
		c.mu.Unlock()
		// the channel may be closed while the connection is still open
		if conn != nil && !conn.IsClosed() {
			_ = conn.Close()
		}

		var ok bool
		closed, ok = c.redial()
		if !ok {
			return
		}
		c.logger.Info("RabbitMQ connection restored")
	}
}

// redial connects until it succeeds or the connection is closed.
func (c *Connection) redial() (<-chan *amqp.Error, bool) {
	delay := minRedialDelay
	for {
		select {
		case <-c.closing:
			return nil, false
		case <-time.After(delay):
		}

		closed, err := c.connect()
		if err == nil {
			return closed, true
		}
		c.logger.Error("Failed to redial RabbitMQ", "delay", delay, "error", err)
		delay = min(2*delay, maxRedialDelay)
	}
}
