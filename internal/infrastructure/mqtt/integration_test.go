//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "chardevd-int-connect"

	client, err := Connect(cfg, "chardev-int")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

// TestIntegration_RetainedAnnouncement publishes a retained record, reads it
// back with a second client and then clears it with an empty payload.
func TestIntegration_RetainedAnnouncement(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "chardevd-int-retained"

	client, err := Connect(cfg, "chardev-int")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := "chardev-int/mychardev/nodes/mychardev-0"
	if err := client.PublishRetained(topic, []byte(`{"name":"mychardev-0"}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	opts := buildClientOptions(cfg)
	opts.SetClientID("chardevd-int-reader")
	reader := pahomqtt.NewClient(opts)
	if token := reader.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("reader connect failed: %v", token.Error())
	}
	defer reader.Disconnect(100)

	got := make(chan []byte, 1)
	reader.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		select {
		case got <- msg.Payload():
		default:
		}
	})

	select {
	case payload := <-got:
		if string(payload) != `{"name":"mychardev-0"}` {
			t.Errorf("retained payload = %s", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retained announcement not delivered")
	}

	if err := client.Publish(topic, nil, 1, true); err != nil {
		t.Errorf("clearing retained message: %v", err)
	}
}
