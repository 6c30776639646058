// Package mqttcallback publishes session events as JSON messages to an
// MQTT broker.
package mqttcallback

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/session"
)

const publishTimeout = 2 * time.Second

// Publisher is the part of mqtt.Client used to send events.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Event is the JSON payload of every message.
type Event struct {
	Source  string    `json:"source"`
	Session string    `json:"session,omitempty"`
	Event   string    `json:"event"`
	Time    time.Time `json:"time"`
	Bitrate int64     `json:"bitrate,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Track   string    `json:"track,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Connect opens a client that reconnects on its own.
func Connect(opts Options, logger ports.Logger) (mqtt.Client, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "telecast-" + uuid.NewString()[:8]
	}
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(clientID)
	co.SetUsername(opts.Username)
	co.SetPassword(opts.Password)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn(l10n.F("MQTT connection lost: %s", err))
	}

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	logger.Info(l10n.F("Connected to MQTT broker %s", opts.Broker))
	return client, nil
}

// Callback is a session.Callback that publishes each event.
type Callback struct {
	client Publisher
	topic  string
	qos    byte
	source string
	logger ports.Logger
	now    func() time.Time

	mu        sync.Mutex
	sessionID string
}

// New creates a callback publishing to topic. Every instance gets its own
// source identifier.
func New(client Publisher, topic string, qos byte, logger ports.Logger) *Callback {
	return &Callback{
		client: client,
		topic:  topic,
		qos:    qos,
		source: uuid.NewString(),
		logger: logger.WithComponent("mqtt"),
		now:    time.Now,
	}
}

// Source returns the identifier sent with every event.
func (c *Callback) Source() string { return c.source }

// SetSessionID tags later events with a session.
func (c *Callback) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *Callback) publish(e Event) {
	c.mu.Lock()
	e.Session = c.sessionID
	c.mu.Unlock()
	e.Source = c.source
	e.Time = c.now().UTC()

	payload, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn(l10n.F("Failed to encode %s event: %s", e.Event, err))
		return
	}
	token := c.client.Publish(c.topic, c.qos, false, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			c.logger.Warn(l10n.F("MQTT publish of %s timed out", e.Event))
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Warn(l10n.F("MQTT publish of %s failed: %s", e.Event, err))
		}
	}()
}

func (c *Callback) OnBitrateUpdate(bitrate int64) {
	c.publish(Event{Event: "bitrate", Bitrate: bitrate})
}

func (c *Callback) OnSessionError(reason session.ErrorReason, kind media.TrackKind, err error) {
	e := Event{Event: "error", Reason: reason.String(), Track: kind.String()}
	if err != nil {
		e.Error = err.Error()
	}
	c.publish(e)
}

func (c *Callback) OnPreviewStarted()    { c.publish(Event{Event: "preview_started"}) }
func (c *Callback) OnSessionConfigured() { c.publish(Event{Event: "configured"}) }
func (c *Callback) OnSessionStarted()    { c.publish(Event{Event: "started"}) }
func (c *Callback) OnSessionStopped()    { c.publish(Event{Event: "stopped"}) }

var _ session.Callback = (*Callback)(nil)
