package matching

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/config"
	"github.com/coinharbor/coinharbor/pkg/metrics"
)

// CommandProducer publishes commands to the matching engine's command
// topic. Messages are keyed by Command.RoutingKey: per-product commands by
// productId, account-affecting commands by user and currency. Kafka's hash
// balancer therefore keeps each product's (and each account's) commands in
// one partition, which is the ordering unit the engine relies on.
type CommandProducer struct {
	writer *kafka.Writer
	codec  *CommandCodec
	logger *zap.Logger
}

// NewCommandProducer creates a producer for the configured command topic.
func NewCommandProducer(cfg config.KafkaConfig, logger *zap.Logger) *CommandProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.CommandTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &CommandProducer{
		writer: writer,
		codec:  NewCommandCodec(logger),
		logger: logger,
	}
}

// Send encodes and publishes one command synchronously.
func (p *CommandProducer) Send(ctx context.Context, cmd Command) error {
	frame, err := p.codec.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", cmd.CommandType(), err)
	}

	msg := kafka.Message{
		Key:   []byte(cmd.RoutingKey()),
		Value: frame,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish command",
			zap.String("type", cmd.CommandType().String()),
			zap.String("key", cmd.RoutingKey()),
			zap.Error(err))
		return fmt.Errorf("publish %s command: %w", cmd.CommandType(), err)
	}

	metrics.CommandsPublished.WithLabelValues(cmd.CommandType().String()).Inc()
	return nil
}

// Close flushes and closes the underlying writer.
func (p *CommandProducer) Close() error {
	return p.writer.Close()
}
