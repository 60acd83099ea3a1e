package events

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"taphouse-backend/internal/config"
)

// Publisher pushes tap state and settlement events to edge controllers over
// MQTT so they can react without polling. Publishing is fire-and-forget;
// request handling never blocks on the broker.
type Publisher interface {
	TapState(tapID int, status string)
	PourSettled(tapID int, visitID, clientTxID, status string)
	ForceUnlock(tapID int, visitID string)
	Close()
}

type mqttPublisher struct {
	client      mqtt.Client
	topicPrefix string
	logger      *zap.Logger
}

type noopPublisher struct{}

func (noopPublisher) TapState(int, string)                    {}
func (noopPublisher) PourSettled(int, string, string, string) {}
func (noopPublisher) ForceUnlock(int, string)                 {}
func (noopPublisher) Close()                                  {}

// NewPublisher connects to the broker, or returns a no-op publisher when
// MQTT is disabled in configuration
func NewPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return noopPublisher{}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout: %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	logger.Info("mqtt publisher connected", zap.String("broker", cfg.Broker))
	return &mqttPublisher{client: client, topicPrefix: cfg.TopicPrefix, logger: logger}, nil
}

// TapState publishes the retained current status of a tap
func (p *mqttPublisher) TapState(tapID int, status string) {
	topic := fmt.Sprintf("%s/taps/%d/state", p.topicPrefix, tapID)
	p.publish(topic, true, map[string]interface{}{
		"tap_id": tapID,
		"status": status,
	})
}

// PourSettled publishes the result of one settled lock cycle
func (p *mqttPublisher) PourSettled(tapID int, visitID, clientTxID, status string) {
	topic := fmt.Sprintf("%s/taps/%d/settlement", p.topicPrefix, tapID)
	p.publish(topic, false, map[string]interface{}{
		"tap_id":       tapID,
		"visit_id":     visitID,
		"client_tx_id": clientTxID,
		"status":       status,
	})
}

// ForceUnlock tells the controller an operator cancelled the lock cycle
func (p *mqttPublisher) ForceUnlock(tapID int, visitID string) {
	topic := fmt.Sprintf("%s/taps/%d/force-unlock", p.topicPrefix, tapID)
	p.publish(topic, false, map[string]interface{}{
		"tap_id":   tapID,
		"visit_id": visitID,
	})
}

func (p *mqttPublisher) publish(topic string, retained bool, payload map[string]interface{}) {
	payload["ts"] = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal mqtt payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	token := p.client.Publish(topic, 1, retained, data)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}

// Close disconnects from the broker
func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}
