// Package feed carries device row changes between homed and its clients over
// MQTT. Every successful device write publishes the updated row to
// homes/<home_id>/devices; the sync controller subscribes to the same topic
// and merges rows without waiting for the next poll.
package feed

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"bs-app/home-core/internal/home"
)

// DeviceHandler receives each device row delivered on a home's topic.
type DeviceHandler func(device home.Device)

// Publisher is the server-side half of the feed. A nil *Client satisfies it
// as a no-op, so homed runs fine without a broker.
type Publisher interface {
	PublishDevice(device home.Device)
}

// Subscriber is the client-side half.
type Subscriber interface {
	SubscribeDevices(homeID string, handler DeviceHandler) (release func(), err error)
}

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client wraps a paho connection for device-change traffic.
type Client struct {
	log       zerolog.Logger
	client    mqtt.Client
	mu        sync.RWMutex
	connected bool
}

func deviceTopic(homeID string) string {
	return fmt.Sprintf("homes/%s/devices", homeID)
}

// Connect dials the broker. An empty broker disables the feed and returns
// nil, nil; callers treat a nil client as a no-op.
func Connect(log zerolog.Logger, cfg Options) (*Client, error) {
	if cfg.Broker == "" {
		log.Info().Msg("device feed disabled: no broker configured")
		return nil, nil
	}

	c := &Client{log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "home-core"
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false) // preserve subscriptions on reconnect
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.setConnected(true)
		c.log.Info().Str("broker", cfg.Broker).Msg("device feed connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.log.Warn().Err(err).Msg("device feed connection lost")
	})

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("feed connect timeout: %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("feed connect: %w", err)
	}
	c.setConnected(true)

	return c, nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Connected reports the current broker link state.
func (c *Client) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// PublishDevice emits the device row on its home's topic. Failures are
// logged, not returned: the feed is an acceleration over polling, never a
// correctness dependency of the write path.
func (c *Client) PublishDevice(device home.Device) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(device)
	if err != nil {
		c.log.Error().Err(err).Str("device_id", device.ID).Msg("feed encode failed")
		return
	}
	token := c.client.Publish(deviceTopic(device.HomeID), 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.log.Warn().Err(token.Error()).Str("device_id", device.ID).Msg("feed publish failed")
		}
	}()
}

// SubscribeDevices starts delivering device rows for one home. The returned
// release func unsubscribes; call it when the home id changes or the session
// ends so no stale listener stays pointed at a previous home.
func (c *Client) SubscribeDevices(homeID string, handler DeviceHandler) (func(), error) {
	if c == nil || c.client == nil {
		return func() {}, nil
	}

	topic := deviceTopic(homeID)
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var row home.DeviceRow
		if err := json.Unmarshal(msg.Payload(), &row); err != nil {
			c.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("feed payload unreadable")
			return
		}
		device := home.MapDevice(row)
		if device.ID == "" {
			return
		}
		handler(device)
	})
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("feed subscribe timeout: %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("feed subscribe %s: %w", topic, err)
	}

	release := func() {
		t := c.client.Unsubscribe(topic)
		t.WaitTimeout(5 * time.Second)
	}
	return release, nil
}

// NopPublisher drops every event; used when homed runs without a broker.
type NopPublisher struct{}

func (NopPublisher) PublishDevice(home.Device) {}
