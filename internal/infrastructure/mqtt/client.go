package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with the telemetry service's connection
// policy.
//
// It provides connection management with bounded retry, message publishing,
// subscription handling, and re-resolution of the broker address on every
// connect cycle.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected/closing/reconnecting track the connection state machine.
	// closing suppresses reconnection during graceful shutdown; reconnecting
	// keeps concurrent loss events from stacking retry loops.
	connected    bool
	closing      bool
	reconnecting bool
	connMu       sync.RWMutex

	// Callbacks for connection events (optional, set via the Set* methods).
	onConnect            func()
	onDisconnect         func(err error)
	onReconnectExhausted func(err error)
	callbackMu           sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) on the status topic
//  3. Runs the bounded connect loop (resolve, dial, delay, retry)
//  4. Publishes online status once connected
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - topics: topic builder carrying the configured root and source
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrRetryExhausted when every attempt failed; startup should abort
func Connect(cfg config.MQTTConfig, topics Topics) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, topics.Status())

	c := &Client{
		cfg:           cfg,
		options:       opts,
		topics:        topics,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)

	if err := c.connectWithRetry(); err != nil {
		return nil, err
	}

	return c, nil
}

// connectWithRetry runs the bounded connect loop shared by startup and
// reconnection. Each attempt re-resolves the broker host before dialing, so
// a broker that moved is found as soon as DNS catches up. Attempts are
// separated by the configured delay; running out of attempts returns
// ErrRetryExhausted wrapping the last failure.
func (c *Client) connectWithRetry() error {
	attempts := c.cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	delay := time.Duration(c.cfg.Retry.Delay) * time.Second
	if c.cfg.Retry.Delay <= 0 {
		delay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(delay)
		}
		if c.isClosing() {
			return fmt.Errorf("%w: client closing", ErrConnectionFailed)
		}

		addr, err := resolveBrokerAddr(c.cfg.Broker.Host)
		if err != nil {
			lastErr = err
			c.logWarn("broker resolution failed",
				"host", c.cfg.Broker.Host,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err)
			continue
		}

		token := c.client.Connect()
		if !token.WaitTimeout(defaultConnectTimeout) {
			lastErr = fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
		} else if err := token.Error(); err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		} else {
			// Set connected state immediately after successful connection.
			// The OnConnectHandler callback runs asynchronously and may not
			// have executed yet; it handles subscription restoration and
			// status publishing.
			c.connMu.Lock()
			c.connected = true
			c.connMu.Unlock()
			return nil
		}

		c.logWarn("broker connect attempt failed",
			"host", c.cfg.Broker.Host,
			"resolved", addr,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr)
	}

	return fmt.Errorf("%w: after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}

// handleConnect is called when a connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	// Restore subscriptions
	c.restoreSubscriptions()

	// Publish online status
	c.publishOnlineStatus()

	// Notify callback if set
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleConnectionLost is called by paho when an established connection drops
// unexpectedly. Graceful Close never lands here; paho fires this handler only
// for transport errors.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	launch := !c.closing && !c.reconnecting
	if launch {
		c.reconnecting = true
	}
	c.connMu.Unlock()

	// Notify callback if set
	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}

	if !launch {
		return
	}

	c.logWarn("broker connection lost, reconnecting", "error", err)
	go c.reconnect()
}

// reconnect reruns the bounded connect loop after an unexpected drop. On
// success paho fires the OnConnect handler, which restores subscriptions and
// republishes the online status. Exhaustion hands the terminal error to the
// OnReconnectExhausted callback; the daemon uses it to shut down rather than
// run blind without a broker.
func (c *Client) reconnect() {
	err := c.connectWithRetry()

	c.connMu.Lock()
	c.reconnecting = false
	c.connMu.Unlock()

	if err == nil {
		return
	}

	c.logError("broker reconnection failed", "error", err)

	c.callbackMu.RLock()
	exhausted := c.onReconnectExhausted
	c.callbackMu.RUnlock()
	if exhausted != nil {
		exhausted(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Re-subscribe (ignore errors during reconnection)
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishOnlineStatus publishes the retained online status.
func (c *Client) publishOnlineStatus() {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Suppresses any further reconnection attempts
//  2. Publishes graceful offline status (different from LWT crash status)
//  3. Waits for pending publish operations
//  4. Disconnects from broker
//
// Returns:
//   - error: If disconnect fails (connection already closed is not an error)
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.connMu.Lock()
	c.closing = true
	c.connMu.Unlock()

	// Check if connected before trying to publish
	if c.IsConnected() {
		// Publish graceful shutdown status
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	// Disconnect with quiesce period for pending operations
	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which can perform an active test.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnReconnectExhausted sets a callback invoked when the bounded reconnect
// loop gives up. The daemon wires this to its shutdown path: a receiver that
// cannot reach the broker should exit loudly, not idle.
func (c *Client) SetOnReconnectExhausted(callback func(err error)) {
	c.callbackMu.Lock()
	c.onReconnectExhausted = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logWarn(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, args...)
	}
}

func (c *Client) isClosing() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.closing
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logWarn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
