// SPDX-License-Identifier: MIT

// Package ha publishes device state to Home Assistant over MQTT discovery.
package ha

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mapio/mapio-gpio-ha/internal/metrics"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Publisher is the MQTT surface entities need. *Conn implements it; tests
// substitute a fake.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// ClientConfig configures the broker connection.
type ClientConfig struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	AvailabilityTopic string
	ConnectTimeout    time.Duration
	Logger            zerolog.Logger
}

type subscription struct {
	qos     byte
	handler func(topic string, payload []byte)
}

// Conn is a connected MQTT client with availability handling. The
// availability topic carries "online" after each (re)connect and "offline"
// as the broker-side last will, so Home Assistant marks every entity
// unavailable when the daemon dies.
type Conn struct {
	client  mqtt.Client
	logger  zerolog.Logger
	timeout time.Duration
	avail   string

	mu   sync.Mutex
	subs map[string]subscription
}

// Connect dials the broker and blocks until the first connection attempt
// resolves. The client keeps reconnecting in the background afterwards.
func Connect(cfg ClientConfig) (*Conn, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	c := &Conn{
		logger:  cfg.Logger,
		timeout: 10 * time.Second,
		avail:   cfg.AvailabilityTopic,
		subs:    make(map[string]subscription),
	}

	// A random suffix keeps a restarted daemon from fighting a half-dead
	// session for the client id.
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false).
		SetWill(cfg.AvailabilityTopic, payloadOffline, 1, true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(mc mqtt.Client) {
		metrics.SetMQTTConnected(true)
		c.logger.Info().
			Str("event", "mqtt.connected").
			Str("client_id", clientID).
			Msg("connected to broker")
		c.onConnect(mc)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		metrics.SetMQTTConnected(false)
		c.logger.Warn().
			Err(err).
			Str("event", "mqtt.connection_lost").
			Msg("lost connection to broker")
	})

	c.client = mqtt.NewClient(opts)

	tok := c.client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return c, nil
}

// onConnect republishes availability and restores subscriptions after a
// reconnect.
func (c *Conn) onConnect(mc mqtt.Client) {
	mc.Publish(c.avail, 1, true, payloadOnline)

	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		handler := sub.handler
		mc.Subscribe(topic, sub.qos, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Topic(), msg.Payload())
		})
	}
}

// Publish sends a message and waits for the broker to accept it.
func (c *Conn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := c.client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler and remembers it for resubscription after
// reconnects.
func (c *Conn) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	tok := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes a subscription.
func (c *Conn) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	tok := c.client.Unsubscribe(topic)
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("unsubscribe %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// Connected reports whether the connection to the broker is currently up.
func (c *Conn) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Close publishes the offline availability payload and disconnects.
func (c *Conn) Close() {
	if err := c.Publish(c.avail, 1, true, []byte(payloadOffline)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to publish offline availability")
	}
	c.client.Disconnect(250)
	metrics.SetMQTTConnected(false)
}
