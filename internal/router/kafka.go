package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

// DefaultKafkaTimeout bounds one write.
const DefaultKafkaTimeout = 10 * time.Second

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers []string      `mapstructure:"brokers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// messageWriter is the subset of *kafka.Writer the handler uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaWriterFunc func(cfg KafkaConfig, topic string) messageWriter

func newKafkaWriter(cfg KafkaConfig, topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.Timeout,
		MaxAttempts:  1,
	}
}

type kafkaHandler struct {
	cfg       KafkaConfig
	newWriter kafkaWriterFunc
	logger    zerolog.Logger
}

func newKafkaHandler(cfg KafkaConfig, newWriter kafkaWriterFunc, logger zerolog.Logger) *kafkaHandler {
	if newWriter == nil {
		newWriter = newKafkaWriter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultKafkaTimeout
	}
	return &kafkaHandler{cfg: cfg, newWriter: newWriter, logger: logger}
}

// Handle writes one message keyed by action and closes the writer.
func (h *kafkaHandler) Handle(ctx context.Context, svc registry.Service, params command.Params) error {
	spec, ok := svc.Spec.(registry.KafkaSpec)
	if !ok {
		return fmt.Errorf("%w: %s is %q", ErrSpecMismatch, svc.Action, svc.Kind())
	}
	if len(h.cfg.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers is empty", ErrNotConfigured)
	}

	value, err := params.Encode()
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	w := h.newWriter(h.cfg, spec.Topic)
	defer w.Close()

	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(svc.Action), Value: value}); err != nil {
		return fmt.Errorf("kafka write %s: %w", spec.Topic, err)
	}

	h.logger.Info().
		Str("action", svc.Action).
		Str("topic", spec.Topic).
		Msg("kafka message written")
	return nil
}
