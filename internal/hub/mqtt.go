package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aquos/internal/aquos"
	"aquos/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const mqttTimeout = 5 * time.Second

// Publisher broadcasts television state changes.
type Publisher interface {
	PublishState(deviceID string, state aquos.State) error
	Close()
}

// ActionHandler receives action requests arriving over MQTT.
type ActionHandler func(deviceID string, payload []byte)

type nopPublisher struct{}

func (nopPublisher) PublishState(string, aquos.State) error { return nil }
func (nopPublisher) Close()                                 {}

// MQTTPublisher publishes retained state to <prefix>/<device>/state and
// accepts action requests on <prefix>/<device>/action.
type MQTTPublisher struct {
	client   mqtt.Client
	prefix   string
	onAction ActionHandler
	logger   zerolog.Logger
}

// NewPublisher connects to the configured broker. Without a broker it
// returns a publisher that drops everything.
func NewPublisher(config MQTTConfig, onAction ActionHandler) (Publisher, error) {
	if config.Broker == "" {
		return nopPublisher{}, nil
	}

	log := logger.For("mqtt")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttTimeout)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", config.Broker).Msg("MQTT connection lost")
	}

	p := &MQTTPublisher{
		prefix:   strings.TrimSuffix(config.TopicPrefix, "/"),
		onAction: onAction,
		logger:   log,
	}
	if onAction != nil {
		// Subscribing in OnConnect restores the subscription after a reconnect.
		opts.OnConnect = func(c mqtt.Client) {
			log.Info().Str("broker", config.Broker).Msg("MQTT connected")
			token := c.Subscribe(p.prefix+"/+/action", 1, p.handleActionMessage)
			if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
				log.Error().Err(token.Error()).Msg("Failed to subscribe to action topic")
			}
		}
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timeout", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", config.Broker, err)
	}

	return p, nil
}

// handleActionMessage is called on paho's message router. Actions wait for
// the broker to acknowledge their state publishes, so they run on their own
// goroutine; each session still serializes its own commands.
func (p *MQTTPublisher) handleActionMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := p.deviceFromTopic(msg.Topic())
	if !ok {
		p.logger.Debug().Str("topic", msg.Topic()).Msg("Ignoring message on unknown topic")
		return
	}
	go p.onAction(deviceID, msg.Payload())
}

// StateTopic returns the topic carrying the state of a device.
func StateTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/%s/state", strings.TrimSuffix(prefix, "/"), deviceID)
}

func (p *MQTTPublisher) deviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, p.prefix+"/")
	if !ok {
		return "", false
	}
	deviceID, ok := strings.CutSuffix(rest, "/action")
	return deviceID, ok && deviceID != "" && !strings.Contains(deviceID, "/")
}

// PublishState publishes the state of a device as retained JSON.
func (p *MQTTPublisher) PublishState(deviceID string, state aquos.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	token := p.client.Publish(StateTopic(p.prefix, deviceID), 1, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("failed to publish state of %s: timeout", deviceID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish state of %s: %w", deviceID, err)
	}

	p.logger.Debug().
		Str("device_id", deviceID).
		RawJSON("state", payload).
		Msg("Published state")
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
