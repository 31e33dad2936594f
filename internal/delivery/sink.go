package delivery

import (
	"context"

	"github.com/rs/zerolog"
)

// Sink accepts notices for delivery. Send may be called concurrently.
// Errors wrapped with backoff.Permanent are not retried.
type Sink interface {
	Send(ctx context.Context, n Notice) error
	Close() error
}

// LogSink writes notices to the log. It is the default when no broker is configured.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogSink{log: logger}
}

func (s *LogSink) Send(_ context.Context, n Notice) error {
	s.log.Info().
		Str("notice_id", n.ID).
		Int64("notification_id", n.NotificationID).
		Strs("recipients", n.Recipients).
		Str("subject", n.Subject).
		Msg("notice delivered")
	return nil
}

func (s *LogSink) Close() error { return nil }
