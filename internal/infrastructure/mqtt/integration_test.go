//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// These tests need a broker on 127.0.0.1:1883:
//
//	docker run --rm -p 1883:1883 eclipse-mosquitto:2 mosquitto -c /mosquitto-no-auth.conf
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func connectTest(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client, err := Connect(cfg, clientID)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectTest(t, "atcbridge-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, "atcbridge-int-refused")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CloseMarksDisconnected(t *testing.T) {
	cfg := testConfig()
	client, err := Connect(cfg, "atcbridge-int-close")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// TestIntegration_SubscriptionsReplayed verifies subscriptions survive a
// forced reconnect.
func TestIntegration_SubscriptionsReplayed(t *testing.T) {
	client := connectTest(t, "atcbridge-int-replay")

	want := []string{"hmd/int/a", "hmd/int/b"}
	for _, topic := range want {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if diff := cmp.Diff(want, client.Subscriptions()); diff != "" {
		t.Errorf("Subscriptions() mismatch (-want +got):\n%s", diff)
	}

	reconnected := make(chan struct{}, 1)
	client.SetOnConnect(func() { reconnected <- struct{}{} })
	client.sessionUp()

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("OnConnect not called")
	}
	if diff := cmp.Diff(want, client.Subscriptions()); diff != "" {
		t.Errorf("Subscriptions() after replay mismatch (-want +got):\n%s", diff)
	}
}

// TestIntegration_BridgeStatusRetained verifies a later subscriber sees the
// retained "online" availability message.
func TestIntegration_BridgeStatusRetained(t *testing.T) {
	bridge := connectTest(t, "atcbridge-int-status")
	observer := connectTest(t, "atcbridge-int-status-obs")

	// Allow the asynchronous on-connect publish to land.
	time.Sleep(200 * time.Millisecond)

	received := make(chan string, 1)
	var once sync.Once
	err := observer.Subscribe(bridge.Topics().BridgeStatus(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != PayloadOnline {
			t.Errorf("status = %q, want %q", msg, PayloadOnline)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for retained status")
	}
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	pubClient := connectTest(t, "atcbridge-int-pub")
	subClient := connectTest(t, "atcbridge-int-sub")

	topic := pubClient.Topics().SensorState("int_temperature")
	expected := "21.4"

	received := make(chan string, 1)
	var once sync.Once

	err := subClient.Subscribe(subClient.Topics().AllSensorStates(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("Received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}
