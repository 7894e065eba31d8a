// Package streaming provides the generic poll-dispatch-commit loop shared by
// every log-stream consumer, plus the Kafka reader/topic plumbing behind it.
package streaming

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
	"github.com/coinharbor/coinharbor/pkg/metrics"
)

// Fetcher is the slice of *kafka.Reader the loop depends on.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one fetched record. A returned fatal fault (see
// common/errors.IsFatal) stops the loop; any other error marks the record as
// skipped and the loop continues.
type Handler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg kafka.Message) error { return f(ctx, msg) }

// Loop is a single-threaded poll-dispatch-commit consumer. Offsets are
// committed synchronously once the uncommitted count exceeds
// commitThreshold. Nothing is committed on rebalance or shutdown: a crash
// between apply and commit causes redelivery, so every handler must be
// idempotent. That trade keeps delivery at-least-once, never at-most-once.
type Loop struct {
	name            string
	fetcher         Fetcher
	handler         Handler
	pollTimeout     time.Duration
	commitThreshold int
	logger          *zap.Logger

	assigned map[int]struct{}
}

// NewLoop creates a consumer loop. pollTimeout bounds each fetch;
// commitThreshold is the uncommitted-record count that triggers a
// synchronous commit.
func NewLoop(name string, fetcher Fetcher, handler Handler, pollTimeout time.Duration, commitThreshold int, logger *zap.Logger) *Loop {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if commitThreshold <= 0 {
		commitThreshold = 10
	}
	return &Loop{
		name:            name,
		fetcher:         fetcher,
		handler:         handler,
		pollTimeout:     pollTimeout,
		commitThreshold: commitThreshold,
		logger:          logger.With(zap.String("consumer", name)),
		assigned:        make(map[int]struct{}),
	}
}

// Run consumes until ctx is cancelled or a fatal fault occurs. The fetcher
// is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.fetcher.Close()

	l.logger.Info("consumer loop started")

	var pending []kafka.Message
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("consumer loop stopped", zap.Int("uncommitted", len(pending)))
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, l.pollTimeout)
		msg, err := l.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// Idle poll cycle.
				continue
			}
			if errors.Is(err, context.Canceled) {
				continue
			}
			l.logger.Error("fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if _, ok := l.assigned[msg.Partition]; !ok {
			l.assigned[msg.Partition] = struct{}{}
			l.logger.Info("partition assigned",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset))
		}
		metrics.RecordsConsumed.WithLabelValues(l.name).Inc()

		if err := l.handler.Handle(ctx, msg); err != nil {
			if cherrors.IsFatal(err) {
				metrics.ConsumerFatal.WithLabelValues(l.name).Inc()
				l.logger.Error("fatal fault, stopping consumer",
					zap.Int64("offset", msg.Offset),
					zap.Int("partition", msg.Partition),
					zap.Error(err))
				return err
			}
			metrics.RecordsSkipped.WithLabelValues(l.name).Inc()
			l.logger.Warn("record skipped",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}

		pending = append(pending, msg)
		if len(pending) > l.commitThreshold {
			if err := l.fetcher.CommitMessages(ctx, pending...); err != nil {
				l.logger.Error("offset commit failed", zap.Error(err))
				continue
			}
			metrics.OffsetCommits.WithLabelValues(l.name).Inc()
			pending = pending[:0]
		}
	}
}
