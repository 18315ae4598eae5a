package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
)

// BreakerNotifier stops calling a failing notifier for a while so a dead
// relay does not burn one timeout per event. Rejected calls are transient
// failures and count against the event's retries like any other.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the breaker. ConsecutiveFailures trips it; Timeout is
// how long it stays open before letting a trial call through.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, Timeout: 30 * time.Second}
}

func NewBreakerNotifier(next Notifier, s BreakerSettings, logger *zap.Logger) *BreakerNotifier {
	settings := gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerNotifier{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (n *BreakerNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	_, err := n.cb.Execute(func() (interface{}, error) {
		return nil, n.next.Send(ctx, recipient, subject, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Transient(err)
	}
	return err
}

// State exposes the breaker state for health reporting.
func (n *BreakerNotifier) State() gobreaker.State {
	return n.cb.State()
}
