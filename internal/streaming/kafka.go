package streaming

import (
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/coinharbor/coinharbor/internal/config"
)

// SharedLogKey is the message key every order-book log record is published
// under. A single key maps to a single partition, which is what gives the
// candle consumer one totally ordered stream: per-product TradeID continuity
// can not survive events for one product being spread across partitions.
const SharedLogKey = "all"

// NewReader creates a group reader for one topic. Consumers start from the
// earliest offset so a fresh group replays the full log.
func NewReader(cfg config.KafkaConfig, topic, group string, logger *zap.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		Topic:                 topic,
		GroupID:               fmt.Sprintf("%s-%s", cfg.ConsumerGroupPrefix, group),
		StartOffset:           kafka.FirstOffset,
		WatchPartitionChanges: true,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), zap.String("topic", topic))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), zap.String("topic", topic))
		}),
	})
}

// EnsureTopics provisions the command and log topics if they do not exist.
// The partition counts encode the ordering contract: the command topic is
// partitioned (per-entity keys give per-entity ordering with parallelism),
// while the message and order-book log topics get exactly one partition so
// that the single shared key yields one global order.
func EnsureTopics(cfg config.KafkaConfig, logger *zap.Logger) error {
	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka broker: %w", err)
	}
	defer conn.Close()

	commandPartitions := cfg.CommandPartitions
	if commandPartitions <= 0 {
		commandPartitions = 12
	}

	topics := []kafka.TopicConfig{
		{
			Topic:             cfg.CommandTopic,
			NumPartitions:     commandPartitions,
			ReplicationFactor: 1,
		},
		{
			Topic:             cfg.MessageTopic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		},
		{
			Topic:             cfg.OrderBookLogTopic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		},
	}

	for _, tc := range topics {
		logger.Info("ensuring topic",
			zap.String("topic", tc.Topic),
			zap.Int("partitions", tc.NumPartitions))
	}

	if err := conn.CreateTopics(topics...); err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	return nil
}
