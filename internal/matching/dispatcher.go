package matching

import (
	"context"

	"go.uber.org/zap"
)

// LogHandler receives the order-book log stream, one callback per type tag.
// Embed NoopLogHandler to handle a subset.
type LogHandler interface {
	OnOrderReceived(ctx context.Context, l *OrderReceivedLog) error
	OnOrderOpen(ctx context.Context, l *OrderOpenLog) error
	OnOrderMatch(ctx context.Context, l *OrderMatchLog) error
	OnOrderDone(ctx context.Context, l *OrderDoneLog) error
	OnOrderRejected(ctx context.Context, l *OrderRejectedLog) error
	OnTicker(ctx context.Context, l *TickerLog) error
}

// DispatchLog routes a decoded log record to the handler. Unknown variants
// (the GenericLog envelope) are logged and ignored.
func DispatchLog(ctx context.Context, l Log, h LogHandler, logger *zap.Logger) error {
	switch v := l.(type) {
	case *OrderReceivedLog:
		return h.OnOrderReceived(ctx, v)
	case *OrderOpenLog:
		return h.OnOrderOpen(ctx, v)
	case *OrderMatchLog:
		return h.OnOrderMatch(ctx, v)
	case *OrderDoneLog:
		return h.OnOrderDone(ctx, v)
	case *OrderRejectedLog:
		return h.OnOrderRejected(ctx, v)
	case *TickerLog:
		return h.OnTicker(ctx, v)
	default:
		logger.Warn("unhandled log variant", zap.String("type", l.LogType().String()))
		return nil
	}
}

// NoopLogHandler implements LogHandler with no-ops.
type NoopLogHandler struct{}

func (NoopLogHandler) OnOrderReceived(context.Context, *OrderReceivedLog) error { return nil }
func (NoopLogHandler) OnOrderOpen(context.Context, *OrderOpenLog) error         { return nil }
func (NoopLogHandler) OnOrderMatch(context.Context, *OrderMatchLog) error       { return nil }
func (NoopLogHandler) OnOrderDone(context.Context, *OrderDoneLog) error         { return nil }
func (NoopLogHandler) OnOrderRejected(context.Context, *OrderRejectedLog) error { return nil }
func (NoopLogHandler) OnTicker(context.Context, *TickerLog) error               { return nil }
