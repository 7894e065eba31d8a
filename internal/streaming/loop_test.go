package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
)

// fakeFetcher serves a fixed slice of messages, then blocks until the fetch
// context expires like an idle reader would.
type fakeFetcher struct {
	mu        sync.Mutex
	messages  []kafka.Message
	next      int
	committed []kafka.Message
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.next < len(f.messages) {
		msg := f.messages[f.next]
		f.next++
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func makeMessages(n int) []kafka.Message {
	msgs := make([]kafka.Message, n)
	for i := range msgs {
		msgs[i] = kafka.Message{Topic: "order-book-log", Partition: 0, Offset: int64(i)}
	}
	return msgs
}

func runLoop(t *testing.T, fetcher *fakeFetcher, handler Handler, timeout time.Duration) error {
	t.Helper()
	loop := NewLoop("test", fetcher, handler, 20*time.Millisecond, 10, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return loop.Run(ctx)
}

func TestLoopCommitsPastThreshold(t *testing.T) {
	fetcher := &fakeFetcher{messages: makeMessages(25)}
	var handled int
	handler := HandlerFunc(func(context.Context, kafka.Message) error {
		handled++
		return nil
	})

	err := runLoop(t, fetcher, handler, 200*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 25, handled)
	// Two batches of 11 commit; the remaining 3 stay uncommitted because
	// shutdown never commits.
	assert.Equal(t, 22, fetcher.committedCount())
	assert.True(t, fetcher.closed)
}

func TestLoopHoldsCommitsBelowThreshold(t *testing.T) {
	fetcher := &fakeFetcher{messages: makeMessages(5)}
	handler := HandlerFunc(func(context.Context, kafka.Message) error { return nil })

	err := runLoop(t, fetcher, handler, 100*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, fetcher.committedCount())
}

func TestLoopStopsOnFatalFault(t *testing.T) {
	fetcher := &fakeFetcher{messages: makeMessages(5)}
	fatal := &cherrors.SequenceGapError{ProductID: "BTC-USDT", Granularity: 1, Expected: 2, Actual: 4}
	var handled int
	handler := HandlerFunc(func(_ context.Context, msg kafka.Message) error {
		handled++
		if msg.Offset == 2 {
			return fatal
		}
		return nil
	})

	err := runLoop(t, fetcher, handler, time.Second)
	var gap *cherrors.SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, 3, handled)
	assert.True(t, fetcher.closed)
}

func TestLoopSkipsBusinessFaults(t *testing.T) {
	fetcher := &fakeFetcher{messages: makeMessages(12)}
	var handled int
	handler := HandlerFunc(func(_ context.Context, msg kafka.Message) error {
		handled++
		if msg.Offset%2 == 0 {
			return fmt.Errorf("stale record %d", msg.Offset)
		}
		return nil
	})

	err := runLoop(t, fetcher, handler, 200*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Skipped records still advance the offset cursor, otherwise the loop
	// would redeliver them forever.
	assert.Equal(t, 12, handled)
	assert.Equal(t, 11, fetcher.committedCount())
}

func TestIsFatalClassification(t *testing.T) {
	assert.True(t, cherrors.IsFatal(&cherrors.DeserializationError{Err: errors.New("bad frame")}))
	assert.True(t, cherrors.IsFatal(&cherrors.SequenceGapError{}))
	assert.False(t, cherrors.IsFatal(errors.New("transient")))
	assert.False(t, cherrors.IsFatal(&cherrors.ValidationError{Reason: "bad amount"}))
}
