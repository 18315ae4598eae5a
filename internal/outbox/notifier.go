package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/config"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
)

// Notifier delivers one message to one recipient. Implementations must
// honour ctx cancellation; the dispatcher bounds every call with a timeout.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	logging.Info(ctx, n.logger, "notification",
		zap.String("to", recipient),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}

// NewNotifier builds the notifier named by cfg.Outbox.Notifier (log, smtp or
// kafka), wrapped in a circuit breaker when cfg.Outbox.Breaker is set. The
// returned close func releases any producer connections.
func NewNotifier(cfg config.Config, logger *zap.Logger) (Notifier, func() error, error) {
	var (
		n       Notifier
		closeFn = func() error { return nil }
	)

	switch cfg.Outbox.Notifier {
	case "", "log":
		n = NewLogNotifier(logger)
	case "smtp":
		s, err := NewSMTPNotifier(cfg.SMTP, logger)
		if err != nil {
			return nil, nil, err
		}
		n = s
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, fmt.Errorf("kafka notifier: KAFKA_BROKERS is not set")
		}
		producer, err := NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, nil, err
		}
		k := NewKafkaNotifier(producer, cfg.Kafka.Topic, logger)
		n, closeFn = k, k.Close
	default:
		return nil, nil, fmt.Errorf("unknown notifier %q", cfg.Outbox.Notifier)
	}

	if cfg.Outbox.Breaker {
		n = NewBreakerNotifier(n, DefaultBreakerSettings(), logger)
	}
	return n, closeFn, nil
}
