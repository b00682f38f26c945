package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fmradiod/internal/chip"
	"github.com/fmradiod/internal/radio"
	"github.com/fmradiod/internal/tuner"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []message
	failNext     error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return err
	}
	c.messages = append(c.messages, message{topic, qos, retained, payload})
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func createTestPublisher(t *testing.T) (*Publisher, *fakeClient, *radio.Engine) {
	t.Helper()

	sim := chip.NewSimulator(chip.SimOptions{Region: chip.RegionUS, Stations: chip.DemoStations()})
	e := radio.New(sim, radio.Options{Tuner: tuner.Options{Region: chip.RegionUS}})
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	client := &fakeClient{}
	p := NewPublisher(client, e, Options{TopicPrefix: "test/radio", Interval: 5 * time.Millisecond, QoS: 1})
	return p, client, e
}

func TestPublishOnce(t *testing.T) {
	p, client, _ := createTestPublisher(t)

	sent, err := p.PublishOnce(context.Background())
	if err != nil || !sent {
		t.Fatalf("Expected first publish, got sent=%v err=%v", sent, err)
	}

	msg := client.messages[0]
	if msg.topic != "test/radio/status" {
		t.Errorf("Expected topic test/radio/status, got %s", msg.topic)
	}
	if !msg.retained || msg.qos != 1 {
		t.Errorf("Expected retained QoS 1, got retained=%v qos=%d", msg.retained, msg.qos)
	}
	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got["band"] != "US" {
		t.Errorf("Expected band US, got %v", got["band"])
	}
}

func TestPublishOnlyOnChange(t *testing.T) {
	p, client, e := createTestPublisher(t)
	ctx := context.Background()

	p.PublishOnce(ctx)
	if sent, _ := p.PublishOnce(ctx); sent {
		t.Error("Expected an unchanged status to be skipped")
	}

	if err := e.SetLED(3); err != nil {
		t.Fatalf("SetLED failed: %v", err)
	}
	if sent, _ := p.PublishOnce(ctx); !sent {
		t.Error("Expected a changed status to be published")
	}
	if client.count() != 2 {
		t.Errorf("Expected 2 messages, got %d", client.count())
	}
}

func TestPublishFailureRetries(t *testing.T) {
	p, client, _ := createTestPublisher(t)
	client.failNext = errors.New("broker away")

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Fatal("Expected publish failure")
	}
	if sent, err := p.PublishOnce(context.Background()); err != nil || !sent {
		t.Errorf("Expected the next attempt to send, got sent=%v err=%v", sent, err)
	}
}

func TestPublishStatusUnavailable(t *testing.T) {
	sim := chip.NewSimulator(chip.SimOptions{Region: chip.RegionUS})
	e := radio.New(sim, radio.Options{Tuner: tuner.Options{Region: chip.RegionUS}})
	p := NewPublisher(&fakeClient{}, e, Options{})

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Error("Expected an uninitialized radio to fail")
	}
	if p.Topic() != "fmradiod/status" {
		t.Errorf("Expected default topic, got %s", p.Topic())
	}
}

func TestRunDisconnectsOnCancel(t *testing.T) {
	p, client, _ := createTestPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for client.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil from Run, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.disconnected {
		t.Error("Expected Disconnect on exit")
	}
	if len(client.messages) == 0 {
		t.Error("Expected at least one message")
	}
}
