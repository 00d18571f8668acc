package mqtt

import (
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 30 * time.Second

	// quiesceMillis lets in-flight acknowledgements drain on Close.
	quiesceMillis = 500

	maxQoS         = 2
	maxPayloadSize = 256 << 10
)

// brokerURL returns the broker address in the form paho expects.
// TLS brokers use the ssl scheme.
func brokerURL(b config.MQTTBrokerConfig) *url.URL {
	u := &url.URL{
		Scheme: "tcp",
		Host:   net.JoinHostPort(b.Host, strconv.Itoa(b.Port)),
	}
	if b.TLS {
		u.Scheme = "ssl"
	}
	return u
}

// sessionOptions maps the bridge configuration onto paho options.
//
// The session is clean: the bridge has no durable subscriptions and
// restores its handlers itself after every reconnect. The will marks all
// of this bridge's entities unavailable if the process dies.
func sessionOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker).String()).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay)).
		SetWill(topics.BridgeStatus(), PayloadOffline, byte(cfg.QoS), true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Broker.Host,
		})
	}
	return opts
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
