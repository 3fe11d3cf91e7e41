package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// AlertSource identifies the session whose alarm tone changed.
type AlertSource struct {
	ClientID string
	Driver   string
}

// Alerter is the alarm device. Start and Stop are only called on edges.
type Alerter interface {
	Start(src AlertSource) error
	Stop(src AlertSource) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(src AlertSource, active bool) error

func (f AlerterFunc) Start(src AlertSource) error { return f(src, true) }
func (f AlerterFunc) Stop(src AlertSource) error  { return f(src, false) }

type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Start(src AlertSource) error {
	a.logger.Warn("drowsiness alarm on",
		zap.String("client_id", src.ClientID),
		zap.String("driver", src.Driver))
	return nil
}

func (a *LogAlerter) Stop(src AlertSource) error {
	a.logger.Info("drowsiness alarm off",
		zap.String("client_id", src.ClientID),
		zap.String("driver", src.Driver))
	return nil
}

// Multi fans out to every alerter and joins their errors.
type Multi []Alerter

func (m Multi) Start(src AlertSource) error {
	var errs []error
	for _, a := range m {
		if err := a.Start(src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Stop(src AlertSource) error {
	var errs []error
	for _, a := range m {
		if err := a.Stop(src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is the subset of an MQTT client the alerter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type alertMessage struct {
	ClientID  string    `json:"client_id"`
	Driver    string    `json:"driver,omitempty"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTAlerter publishes tone edges to <prefix>/<client_id>/alert so an
// in-cabin buzzer can follow the session.
type MQTTAlerter struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

func NewMQTTAlerter(pub Publisher, prefix string) *MQTTAlerter {
	return &MQTTAlerter{pub: pub, prefix: prefix, now: time.Now}
}

func (a *MQTTAlerter) Topic(clientID string) string {
	return fmt.Sprintf("%s/%s/alert", a.prefix, clientID)
}

func (a *MQTTAlerter) publish(src AlertSource, active bool) error {
	payload, err := json.Marshal(alertMessage{
		ClientID:  src.ClientID,
		Driver:    src.Driver,
		Active:    active,
		Timestamp: a.now().UTC(),
	})
	if err != nil {
		return err
	}
	return a.pub.Publish(a.Topic(src.ClientID), 1, false, payload)
}

func (a *MQTTAlerter) Start(src AlertSource) error { return a.publish(src, true) }
func (a *MQTTAlerter) Stop(src AlertSource) error  { return a.publish(src, false) }

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// MQTTClient wraps a connected paho client.
type MQTTClient struct {
	client mqtt.Client
}

func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTClient{client: client}, nil
}

func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}
