package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
)

const (
	DefaultServer = "tcp://localhost:1883"
	DefaultTopic  = "sensordash/telemetry"

	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
)

type Config struct {
	Server   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// MQTTOutput publishes the latest readings as JSON to one topic.
type MQTTOutput struct {
	client mqtt.Client
	topic  string
}

// DefaultClientID returns a client id unique to this process.
func DefaultClientID() string {
	return "sensordash-" + uuid.NewString()[:8]
}

func NewMQTT(cfg Config) (*MQTTOutput, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Server).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Server)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Server, err)
	}
	log.Printf("[mqtt] connected to %s as %s, publishing to %s", cfg.Server, cfg.ClientID, cfg.Topic)
	return &MQTTOutput{client: client, topic: cfg.Topic}, nil
}

type channelPayload struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

type payload struct {
	Tick     uint64         `json:"tick"`
	Stamp    int64          `json:"stamp"` // Unix ms
	Stale    bool           `json:"stale"`
	Distance channelPayload `json:"distance"`
	Yaw      channelPayload `json:"yaw"`
	Pitch    channelPayload `json:"pitch"`
	Bank     []int          `json:"bank"`
}

func buildPayload(s *acquire.Snapshot) ([]byte, error) {
	ch := func(c calib.Channel) channelPayload {
		return channelPayload{Value: s.Value(c), Valid: s.Valid[c]}
	}
	p := payload{
		Tick:     s.Tick,
		Stamp:    s.Stamp.UnixMilli(),
		Stale:    s.Stale,
		Distance: ch(calib.Distance),
		Yaw:      ch(calib.Yaw),
		Pitch:    ch(calib.Pitch),
		Bank:     make([]int, len(s.RawBank)),
	}
	for i, b := range s.RawBank {
		p.Bank[i] = int(b)
	}
	return json.Marshal(p)
}

func (m *MQTTOutput) Publish(s *acquire.Snapshot) error {
	b, err := buildPayload(s)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 0, false, b)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", m.topic)
	}
	return token.Error()
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
