package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/store"
)

// flakySink fails its first `failures` sends, every send when negative.
type flakySink struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts int
	sent     []Notice
}

func (s *flakySink) Send(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures < 0 || s.attempts <= s.failures {
		if s.err != nil {
			return s.err
		}
		return errors.New("sink unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *flakySink) Close() error { return nil }

func (s *flakySink) snapshot() (int, []Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, append([]Notice(nil), s.sent...)
}

func testConfig() Config {
	return Config{QueueSize: 8, Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestDeliver_RetriesUntilSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sink := &flakySink{failures: 2}
	d := NewDispatcher(sink, testConfig(), m, nil)

	err := d.deliver(context.Background(), Notice{ID: "n1"})
	require.NoError(t, err)

	attempts, sent := sink.snapshot()
	assert.Equal(t, 3, attempts)
	require.Len(t, sent, 1)
	assert.Equal(t, "n1", sent[0].ID)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryAttempts.WithLabelValues("success")))
}

func TestDeliver_GivesUpAfterMaxRetries(t *testing.T) {
	sink := &flakySink{failures: -1}
	d := NewDispatcher(sink, testConfig(), nil, nil)

	err := d.deliver(context.Background(), Notice{ID: "n1"})
	require.Error(t, err)

	attempts, sent := sink.snapshot()
	assert.Equal(t, 4, attempts)
	assert.Empty(t, sent)
}

func TestDeliver_PermanentErrorIsNotRetried(t *testing.T) {
	boom := errors.New("bad notice")
	sink := &flakySink{failures: -1, err: backoff.Permanent(boom)}
	d := NewDispatcher(sink, testConfig(), nil, nil)

	err := d.deliver(context.Background(), Notice{ID: "n1"})
	require.ErrorIs(t, err, boom)

	attempts, _ := sink.snapshot()
	assert.Equal(t, 1, attempts)
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cfg := testConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(&flakySink{}, cfg, m, nil)

	assert.True(t, d.Publish(Notice{ID: "a"}))
	assert.False(t, d.Publish(Notice{ID: "b"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryQueueDepth))
}

func TestRun_DeliversPublishedNotices(t *testing.T) {
	sink := &flakySink{}
	d := NewDispatcher(sink, testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Notify(core.NotificationEvent{
		Notification: &store.Notification{ID: 1, UserID: 2, MessageID: 3, Type: store.NotificationNewMessage, Content: "New message from alice: hi..."},
		Sender:       &store.User{ID: 1, Username: "alice"},
		Receiver:     &store.User{ID: 2, Username: "bob", Email: "bob@example.com"},
	})

	require.Eventually(t, func() bool {
		_, sent := sink.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, sent := sink.snapshot()
	assert.Equal(t, []string{"bob@example.com"}, sent[0].Recipients)
	assert.Equal(t, "New message from alice", sent[0].Subject)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestNotify_SkipsReceiverWithoutAddress(t *testing.T) {
	d := NewDispatcher(&flakySink{}, testConfig(), nil, nil)

	d.Notify(core.NotificationEvent{
		Notification: &store.Notification{ID: 1, UserID: 2},
		Sender:       &store.User{ID: 1, Username: "alice"},
		Receiver:     &store.User{ID: 2, Username: "bob"},
	})

	assert.Zero(t, len(d.queue))
}
