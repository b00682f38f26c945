// Package publish mirrors the radio status to an MQTT broker.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/fmradiod/internal/config"
	"github.com/fmradiod/internal/metrics"
	"github.com/fmradiod/internal/radio"
	"github.com/fmradiod/internal/status"
)

// Client is the part of an MQTT client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// StatusSource yields the current radio snapshot.
type StatusSource interface {
	Status(ctx context.Context) (radio.Status, error)
}

const publishTimeout = 5 * time.Second

// pahoClient adapts a paho client to Client.
type pahoClient struct {
	client mqtt.Client
}

func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		return errors.New("MQTT not connected")
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (c *pahoClient) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		log.Println("MQTT: Disconnected from broker")
	}
}

// Connect dials the broker in cfg.
func Connect(cfg config.MQTTConfig) (Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("fmradiod_" + uuid.NewString()[:8])

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Printf("MQTT: Connecting to broker: %s", cfg.Broker)
	return &pahoClient{client: client}, nil
}

// Options configures a Publisher.
type Options struct {
	TopicPrefix string
	Interval    time.Duration
	QoS         byte
	Metrics     *metrics.Metrics
}

// Publisher polls the status and publishes the JSON report, retained, to
// <prefix>/status whenever it differs from the last one sent.
type Publisher struct {
	client Client
	source StatusSource
	opts   Options
	last   []byte
}

// NewPublisher creates a publisher.
func NewPublisher(client Client, source StatusSource, opts Options) *Publisher {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "fmradiod"
	}
	return &Publisher{client: client, source: source, opts: opts}
}

// Topic is where the status is published.
func (p *Publisher) Topic() string {
	return p.opts.TopicPrefix + "/status"
}

// Run publishes until ctx is cancelled, then disconnects.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.client.Disconnect()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.PublishOnce(ctx); err != nil {
			log.Printf("MQTT ERROR: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PublishOnce sends the current report if it changed. It reports whether a
// message was sent.
func (p *Publisher) PublishOnce(ctx context.Context) (bool, error) {
	st, err := p.source.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("status unavailable: %w", err)
	}
	data, err := json.Marshal(status.NewReport(st))
	if err != nil {
		return false, fmt.Errorf("failed to marshal report: %w", err)
	}
	if bytes.Equal(data, p.last) {
		return false, nil
	}

	err = p.client.Publish(p.Topic(), p.opts.QoS, true, data)
	p.opts.Metrics.RecordPublish(err)
	if err != nil {
		return false, fmt.Errorf("failed to publish to %s: %w", p.Topic(), err)
	}
	p.last = data
	return true, nil
}
