package router

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

const (
	// DefaultMQTTTimeout bounds connect and publish acknowledgment.
	DefaultMQTTTimeout = 10 * time.Second

	// disconnectQuiesce is how long Disconnect waits for in-flight work (ms).
	disconnectQuiesce = 250

	// maxPayloadSize matches typical broker limits.
	maxPayloadSize = 1 << 20
)

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	TLS      bool          `mapstructure:"tls"`
	ClientID string        `mapstructure:"client_id"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"` // #nosec G117 -- config deserialization, not hardcoded
	Timeout  time.Duration `mapstructure:"timeout"`
}

// mqttClient is the subset of pahomqtt.Client the handler uses.
type mqttClient interface {
	Connect() pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

type mqttDialFunc func(opts *pahomqtt.ClientOptions) mqttClient

func pahoDial(opts *pahomqtt.ClientOptions) mqttClient {
	return pahomqtt.NewClient(opts)
}

type mqttHandler struct {
	cfg    MQTTConfig
	dial   mqttDialFunc
	logger zerolog.Logger
}

func newMQTTHandler(cfg MQTTConfig, dial mqttDialFunc, logger zerolog.Logger) *mqttHandler {
	if dial == nil {
		dial = pahoDial
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTTimeout
	}
	return &mqttHandler{cfg: cfg, dial: dial, logger: logger}
}

// Handle connects, publishes once and disconnects.
func (h *mqttHandler) Handle(_ context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.MQTTSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}

	payload, err := params.Encode()
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("mqtt: payload size %d exceeds maximum %d bytes", len(payload), maxPayloadSize)
	}

	client := h.dial(buildMQTTOptions(h.cfg))

	token := client.Connect()
	if !token.WaitTimeout(h.cfg.Timeout) {
		// Stops paho retrying the connect in the background.
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: timeout after %v", h.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect(disconnectQuiesce)

	token = client.Publish(spec.Topic, spec.QoS, spec.Retained, payload)
	if !token.WaitTimeout(h.cfg.Timeout) {
		return fmt.Errorf("mqtt publish %s: timeout after %v", spec.Topic, h.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", spec.Topic, err)
	}

	h.logger.Info().
		Str("action", svc.Action).
		Str("topic", spec.Topic).
		Msg("mqtt message published")
	return nil
}

// buildMQTTOptions maps MQTTConfig to paho options. Credentials are only set
// when a username is configured.
func buildMQTTOptions(cfg MQTTConfig) *pahomqtt.ClientOptions {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 1883
	}
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "mailcmd-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)))).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.Timeout)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}
