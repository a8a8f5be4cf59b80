package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/84hero/stream-gateway/pkg/event"
	"github.com/84hero/stream-gateway/pkg/sink"
	"github.com/stretchr/testify/assert"
)

// stubSink counts deliveries and fails a configurable number of times.
type stubSink struct {
	name      string
	failTimes int32
	permanent bool
	calls     int32
	delay     time.Duration
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Format(ev event.TransferEvent) (sink.Message, error) {
	return sink.Message{Event: ev}, nil
}

func (s *stubSink) Deliver(ctx context.Context, msg sink.Message) error {
	n := atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= s.failTimes {
		err := errors.New("boom")
		if s.permanent {
			return sink.Permanent(err)
		}
		return err
	}
	return nil
}

func (s *stubSink) Close() error { return nil }

func testEvent() event.TransferEvent {
	return event.TransferEvent{
		TransactionHash: "0xhash1",
		From:            "0xAAA",
		To:              "0xBBB",
		Value:           "1",
		ChainID:         "0x1",
		ReceivedAt:      time.Now(),
	}
}

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        100 * time.Millisecond,
	}
}

func TestDispatch_AllDelivered(t *testing.T) {
	a := &stubSink{name: "a"}
	b := &stubSink{name: "b"}
	d := New(fastConfig(), a, b)
	defer d.Close()

	report := d.Dispatch(context.Background(), testEvent())
	assert.Equal(t, "0xhash1", report.TransactionHash)
	assert.Len(t, report.Results, 2)
	assert.Empty(t, report.Failed())
	assert.EqualValues(t, 1, a.calls)
	assert.EqualValues(t, 1, b.calls)
}

func TestDispatch_FailureIsolation(t *testing.T) {
	// Sink a always fails, sink b succeeds; b must still deliver and the
	// report must show both outcomes
	a := &stubSink{name: "a", failTimes: 100}
	b := &stubSink{name: "b"}
	d := New(fastConfig(), a, b)
	defer d.Close()

	report := d.Dispatch(context.Background(), testEvent())
	failed := report.Failed()
	assert.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].Sink)
	assert.EqualValues(t, 1, b.calls)

	for _, res := range report.Results {
		if res.Sink == "b" {
			assert.True(t, res.Delivered)
		}
	}
}

func TestDispatch_TransientRetry(t *testing.T) {
	s := &stubSink{name: "flaky", failTimes: 2}
	d := New(fastConfig(), s)
	defer d.Close()

	report := d.Dispatch(context.Background(), testEvent())
	assert.Empty(t, report.Failed())
	assert.EqualValues(t, 3, s.calls)
	assert.Equal(t, 3, report.Results[0].Attempts)
}

func TestDispatch_PermanentNoRetry(t *testing.T) {
	s := &stubSink{name: "broken", failTimes: 100, permanent: true}
	d := New(fastConfig(), s)
	defer d.Close()

	report := d.Dispatch(context.Background(), testEvent())
	assert.Len(t, report.Failed(), 1)
	// Permanent errors stop after the first attempt
	assert.EqualValues(t, 1, s.calls)
}

func TestDispatch_RetriesExhausted(t *testing.T) {
	s := &stubSink{name: "down", failTimes: 100}
	d := New(fastConfig(), s)
	defer d.Close()

	report := d.Dispatch(context.Background(), testEvent())
	assert.Len(t, report.Failed(), 1)
	assert.EqualValues(t, 3, s.calls)
	assert.Error(t, report.Results[0].Err)
}

func TestDispatch_AttemptTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.Timeout = 5 * time.Millisecond
	cfg.MaxAttempts = 2
	s := &stubSink{name: "slow", delay: 50 * time.Millisecond}
	d := New(cfg, s)
	defer d.Close()

	report := d.Dispatch(context.Background(), testEvent())
	assert.Len(t, report.Failed(), 1)
	// Attempt timeout is transient, so both attempts run
	assert.EqualValues(t, 2, s.calls)
}

func TestDispatch_ContextCancel(t *testing.T) {
	s := &stubSink{name: "slow", delay: time.Second}
	d := New(fastConfig(), s)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	report := d.Dispatch(ctx, testEvent())
	assert.Len(t, report.Failed(), 1)
}

func TestDispatch_Parallel(t *testing.T) {
	// Two slow sinks must overlap, not run back to back
	a := &stubSink{name: "a", delay: 50 * time.Millisecond}
	b := &stubSink{name: "b", delay: 50 * time.Millisecond}
	d := New(fastConfig(), a, b)
	defer d.Close()

	start := time.Now()
	d.Dispatch(context.Background(), testEvent())
	assert.Less(t, time.Since(start), 95*time.Millisecond)
}

func TestDispatch_NoSinks(t *testing.T) {
	d := New(fastConfig())
	report := d.Dispatch(context.Background(), testEvent())
	assert.Empty(t, report.Results)
	assert.Empty(t, report.Failed())
}
