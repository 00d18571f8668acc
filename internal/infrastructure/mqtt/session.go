package mqtt

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// sessionUp runs on every successful connect, including reconnects.
func (c *Client) sessionUp() {
	c.setConnected(true)

	for topic, sub := range c.snapshotSubs() {
		if err := c.await(c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler)), ackTimeout); err != nil {
			c.logWarn("MQTT resubscribe failed", "topic", topic, "error", err)
		}
	}

	// Fire and forget: this runs on paho's callback goroutine, which must
	// not block on an acknowledgement.
	c.paho.Publish(c.topics.BridgeStatus(), c.QoS(), true, PayloadOnline)

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) sessionLost(err error) {
	c.setConnected(false)

	c.mu.RLock()
	fn := c.onDisconnect
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) snapshotSubs() map[string]subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		out[topic] = sub
	}
	return out
}

// await waits for a paho token and classifies the outcome.
func (c *Client) await(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	if err := token.Error(); err != nil {
		if errors.Is(err, pahomqtt.ErrNotConnected) {
			return ErrNotConnected
		}
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return nil
}

// dispatch adapts a MessageHandler to paho, logging returned errors and
// recovering panics so one bad message cannot kill paho's router.
func (c *Client) dispatch(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			c.logWarn("MQTT handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
