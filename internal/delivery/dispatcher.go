package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
)

// Config tunes a Dispatcher.
type Config struct {
	QueueSize     int
	Workers       int
	RatePerSecond float64 // <= 0 means unthrottled
	Burst         int
	MaxRetries    int
	RetryDelay    time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     1024,
		Workers:       2,
		RatePerSecond: 20,
		Burst:         5,
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// Dispatcher queues notices and delivers them to a Sink from a fixed set of
// workers, throttled and retried with a constant delay.
type Dispatcher struct {
	sink    Sink
	cfg     Config
	queue   chan Notice
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewDispatcher creates a dispatcher. Run must be called to start delivery.
func NewDispatcher(sink Sink, cfg Config, m *metrics.Metrics, logger *zerolog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Dispatcher{
		sink:    sink,
		cfg:     cfg,
		queue:   make(chan Notice, cfg.QueueSize),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		metrics: m,
		log:     logger,
	}
}

// Publish enqueues a notice without blocking. It reports false and drops the
// notice when the queue is full.
func (d *Dispatcher) Publish(n Notice) bool {
	select {
	case d.queue <- n:
		d.metrics.SetDeliveryQueueDepth(len(d.queue))
		return true
	default:
		d.metrics.DeliveryDrop()
		d.log.Warn().Str("notice_id", n.ID).Int64("notification_id", n.NotificationID).Msg("delivery queue full, dropping notice")
		return false
	}
}

// Notify implements core.Notifier.
func (d *Dispatcher) Notify(ev core.NotificationEvent) {
	if ev.Notification == nil || ev.Sender == nil {
		return
	}
	notice := Render(ev.Notification, ev.Sender, ev.Receiver)
	if len(notice.Recipients) == 0 {
		d.log.Debug().Int64("user_id", ev.Notification.UserID).Msg("receiver has no address, skipping notice")
		return
	}
	d.Publish(notice)
}

// Run delivers queued notices until ctx is cancelled, then waits for the
// workers to finish their current notice.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	if pending := len(d.queue); pending > 0 {
		d.log.Warn().Int("pending", pending).Msg("dispatcher stopped with undelivered notices")
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.metrics.SetDeliveryQueueDepth(len(d.queue))
			if err := d.deliver(ctx, n); err != nil {
				d.log.Error().Err(err).
					Int("worker", id).
					Str("notice_id", n.ID).
					Int64("notification_id", n.NotificationID).
					Msg("notice delivery failed")
			}
		}
	}
}

// deliver sends n, retrying up to MaxRetries times with a fixed delay.
func (d *Dispatcher) deliver(ctx context.Context, n Notice) error {
	attempt := 0
	op := func() error {
		attempt++
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if err := d.sink.Send(ctx, n); err != nil {
			d.metrics.DeliveryAttempt("error")
			d.log.Warn().Err(err).Int("attempt", attempt).Str("notice_id", n.ID).Msg("notice send failed")
			return err
		}
		d.metrics.DeliveryAttempt("success")
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.cfg.RetryDelay), uint64(d.cfg.MaxRetries)),
		ctx,
	)
	return backoff.Retry(op, policy)
}
