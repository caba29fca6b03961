// Package messaging publishes completed history entries to AMQP.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"speechcoach/pkg/history"
	"speechcoach/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// EventEntryCreated is the event name carried by published entries.
const EventEntryCreated = "entry.created"

// EntryMessage is the JSON body published for each new entry
type EntryMessage struct {
	Event       string        `json:"event"`
	Entry       history.Entry `json:"entry"`
	PublishedAt time.Time     `json:"published_at"`
}

// AMQPConfig holds AMQP publisher configuration
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	// PublishTimeout bounds a single publish
	PublishTimeout time.Duration
	// MaxReconnectAttempts bounds the reconnect loop after a dropped connection
	MaxReconnectAttempts int
}

// publishChannel is the subset of *amqp.Channel the publisher uses
type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes entries to a durable queue
type AMQPPublisher struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   publishChannel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPPublisher creates a publisher. Call Connect before publishing.
func NewAMQPPublisher(logger *logrus.Logger, config AMQPConfig) *AMQPPublisher {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = 10
	}
	return &AMQPPublisher{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect dials the server, opens a channel and declares the queue
func (c *AMQPPublisher) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.URL == "" || c.config.QueueName == "" {
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	conn, err := amqp.DialConfig(c.config.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		metrics.SetAMQPConnectionStatus(false)
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		c.config.QueueName,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	c.logger.WithField("queue", c.config.QueueName).Info("Connected to AMQP server")

	go c.monitorConnection(conn, c.stopChan)
	return nil
}

// Disconnect closes the AMQP connection
func (c *AMQPPublisher) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	// also stops a reconnect loop that is still running
	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if !c.connected {
		return
	}

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPPublisher) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// Publish sends entry as a persistent JSON message
func (c *AMQPPublisher) Publish(ctx context.Context, entry history.Entry) error {
	body, err := json.Marshal(EntryMessage{
		Event:       EventEntryCreated,
		Entry:       entry,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal entry to JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
	defer cancel()

	publishChan := make(chan error, 1)
	go func() {
		c.connMutex.RLock()
		defer c.connMutex.RUnlock()

		if !c.connected || c.channel == nil {
			publishChan <- fmt.Errorf("not connected to AMQP server")
			return
		}

		publishChan <- c.channel.Publish(
			c.config.ExchangeName,
			c.config.RoutingKey,
			false, // Mandatory
			false, // Immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				MessageId:    entry.ID,
				Type:         EventEntryCreated,
			},
		)
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			metrics.RecordAMQPPublish(c.config.QueueName, "error")
			return fmt.Errorf("failed to publish entry to AMQP: %w", err)
		}
	case <-ctx.Done():
		metrics.RecordAMQPPublish(c.config.QueueName, "timeout")
		return fmt.Errorf("publishing to AMQP timed out: %w", ctx.Err())
	}

	metrics.RecordAMQPPublish(c.config.QueueName, "success")
	c.logger.WithField("entry_id", entry.ID).Debug("Published entry to AMQP")
	return nil
}

// monitorConnection reconnects with backoff when the server drops the connection
func (c *AMQPPublisher) monitorConnection(conn *amqp.Connection, stop <-chan struct{}) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-stop:
		return
	case closeErr, ok := <-closeChan:
		if !ok {
			return
		}
		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)
		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")
	}

	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-stop:
			return
		default:
		}

		if err := c.Connect(); err == nil {
			c.logger.WithField("attempt", attempt).Info("Reconnected to AMQP server")
			return
		} else {
			c.logger.WithError(err).WithField("attempt", attempt).Warn("Failed to reconnect to AMQP server")
		}

		// Exponential backoff with max delay of 30 seconds
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
	}

	c.logger.Error("Giving up on AMQP reconnect; entries will not be published")
}
