package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler processes one inbound message. A returned error is logged
// and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the bridge's broker session.
//
// It owns the bridge availability topic: "online" is published (retained)
// after every successful connect and "offline" on Close, with the broker's
// Last Will covering crashes. Subscriptions made through Subscribe are
// replayed after each reconnect because the session is clean.
//
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	opts   *pahomqtt.ClientOptions
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.RWMutex
	connected    bool
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

// Connect opens a session to the configured broker and announces the
// bridge as online.
//
// Parameters:
//   - cfg: broker, credentials, QoS and topic prefixes
//   - bridgeID: identity used in the availability and health topics
//
// Returns:
//   - *Client: a connected client
//   - error: wraps ErrConnectionFailed if the broker cannot be reached
//     within the connect timeout
func Connect(cfg config.MQTTConfig, bridgeID string) (*Client, error) {
	c := newClient(cfg, bridgeID)

	c.opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	c.opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionLost(err) })
	c.opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logWarn("MQTT reconnecting", "broker", c.opts.Servers[0].Host)
	})

	c.paho = pahomqtt.NewClient(c.opts)
	if err := c.await(c.paho.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.opts.Servers[0].Host, err)
	}

	// The on-connect handler runs asynchronously. Mark the session up now
	// so callers see IsConnected() == true as soon as Connect returns.
	c.setConnected(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, bridgeID string) *Client {
	topics := NewTopics(cfg, bridgeID)
	return &Client{
		opts:   sessionOptions(cfg, topics),
		cfg:    cfg,
		topics: topics,
		subs:   make(map[string]subscription),
	}
}

// Topics returns the topic builder for this bridge.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	up := c.connected
	c.mu.RUnlock()
	return up && c.paho != nil && c.paho.IsConnected()
}

// HealthCheck returns ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes "offline" to the availability topic and disconnects.
// It is safe to call on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		//nolint:errcheck // best effort; the will covers a failed publish
		c.await(c.paho.Publish(c.topics.BridgeStatus(), c.QoS(), true, PayloadOffline), ackTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.setConnected(false)
	return nil
}

// SetOnConnect registers a callback run after every (re)connect, once
// subscriptions are restored and "online" has been published.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback run when the session drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger used for reconnects and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) setConnected(up bool) {
	c.mu.Lock()
	c.connected = up
	c.mu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.mu.RLock()
	l := c.logger
	c.mu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.mu.RLock()
	l := c.logger
	c.mu.RUnlock()
	if l != nil {
		l.Error(msg, args...)
	}
}
