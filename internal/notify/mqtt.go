package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vigil/internal/event"
)

// MQTTConfig configures the broker connection for event publishing.
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
	// TopicPrefix is prepended to <camera>/<roi> when publishing.
	TopicPrefix string
}

// MQTTPublisher mirrors motion events onto a broker topic so downstream
// automations can react without polling the control API.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
}

// NewMQTTPublisher connects to the broker. Connection failure is an error;
// later disconnects are handled by the client's auto-reconnect.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "vigil"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "vigil/events"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	return &MQTTPublisher{client: cli, prefix: cfg.TopicPrefix}, nil
}

// mqttEvent is the broker payload; screenshots stay off the bus.
type mqttEvent struct {
	ID        string            `json:"id"`
	Event     string            `json:"event"`
	Camera    string            `json:"camera_name"`
	ROI       string            `json:"roi_name"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notify implements event.Notifier.
func (p *MQTTPublisher) Notify(_ context.Context, ev event.Event) error {
	payload, err := json.Marshal(mqttEvent{
		ID:        ev.ID,
		Event:     "motion_detected",
		Camera:    ev.Camera,
		ROI:       ev.ROI,
		Timestamp: ev.Timestamp,
		Metadata:  ev.Metadata,
	})
	if err != nil {
		return fmt.Errorf("encoding mqtt event: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/%s", p.prefix, ev.Camera, ev.ROI)
	token := p.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
