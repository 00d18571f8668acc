package mqtt

import (
	"fmt"
	"slices"
)

// Publish sends payload to topic and waits for the broker's acknowledgement
// (QoS 1 and 2) or for the write to complete (QoS 0).
//
// Discovery configs and the availability topic are retained. Sensor states
// are not, so Home Assistant applies expire_after to stale readings.
//
// Returns ErrInvalidMessage for a bad topic, QoS or payload size,
// ErrNotConnected while the session is down, ErrTimeout when the broker
// does not answer in time, and ErrRejected otherwise.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkMessage(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrInvalidMessage, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.await(c.paho.Publish(topic, qos, retained, payload), ackTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe routes messages matching topic (wildcards allowed) to handler.
// The subscription is remembered and replayed after every reconnect.
// Subscribing again to the same topic replaces the handler.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkMessage(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrInvalidMessage, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := c.await(c.paho.Subscribe(topic, qos, c.dispatch(handler)), ackTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Subscriptions returns the tracked topic filters in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

func checkMessage(topic string, qos byte) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrInvalidMessage, qos)
	}
	return nil
}
