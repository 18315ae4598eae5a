// Package outbox drains the transactional outbox: it claims PENDING events,
// renders and sends their notifications, and records the outcome with
// bounded retries. Delivery is at-least-once.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

var tracer = otel.Tracer("bookable/outbox")

// Repository is the dispatcher's view of the outbox table.
type Repository interface {
	// ReleaseStuck moves PROCESSING rows not updated since cutoff back to
	// PENDING, bumping retryCount, or to FAILED once retries are exhausted.
	ReleaseStuck(ctx context.Context, cutoff time.Time, maxRetries int, now time.Time) (int, error)
	// ListPending returns up to limit PENDING rows with retryCount below
	// maxRetries, oldest first.
	ListPending(ctx context.Context, limit, maxRetries int) ([]model.OutboxEvent, error)
	// Claim atomically moves a row from PENDING to PROCESSING and reports
	// whether this caller won it.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Save(ctx context.Context, event *model.OutboxEvent) error
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxRetries  int
	SendTimeout time.Duration
	// StuckAfter is how long a row may sit in PROCESSING before it is
	// considered abandoned. Zero disables recovery.
	StuckAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:    60 * time.Second,
		BatchSize:   10,
		MaxRetries:  5,
		SendTimeout: 10 * time.Second,
		StuckAfter:  10 * time.Minute,
	}
}

// CycleResult counts what one RunCycle did.
type CycleResult struct {
	Released  int
	Selected  int
	Skipped   int
	Completed int
	Retried   int
	Failed    int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeRetried
	outcomeFailed
)

type Dispatcher struct {
	repo     Repository
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
	cfg      Config

	cycleMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(repo Repository, notifier Notifier, clk clock.Clock, logger *zap.Logger, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	return &Dispatcher{
		repo:     repo,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes a cycle immediately and then on every tick until ctx is
// cancelled or Shutdown is called. A cycle in progress is always allowed
// to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		cancel()
		return errors.New("outbox dispatcher already running")
	}
	d.cancel, d.done = cancel, done
	d.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		d.mu.Lock()
		d.cancel, d.done = nil, nil
		d.mu.Unlock()
	}()

	logging.Info(runCtx, d.logger, "outbox dispatcher started",
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Int("max_retries", d.cfg.MaxRetries),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		d.RunCycle(runCtx)

		select {
		case <-runCtx.Done():
			logging.Info(context.WithoutCancel(runCtx), d.logger, "outbox dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Shutdown stops Run and waits for it to return, or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox dispatcher shutdown: %w", ctx.Err())
	}
}

// RunCycle performs one drain pass. Cancelling ctx stops the pass before
// the next event is claimed; an event already claimed is finished and saved.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleResult {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	ctx, span := tracer.Start(ctx, "outbox.cycle")
	defer span.End()

	var res CycleResult
	now := d.clock.Now()

	if d.cfg.StuckAfter > 0 {
		released, err := d.repo.ReleaseStuck(ctx, now.Add(-d.cfg.StuckAfter), d.cfg.MaxRetries, now)
		if err != nil {
			logging.Error(ctx, d.logger, "release stuck outbox events", zap.Error(err))
		}
		res.Released = released
		if released > 0 {
			logging.Warn(ctx, d.logger, "released stuck outbox events", zap.Int("count", released))
		}
	}

	events, err := d.repo.ListPending(ctx, d.cfg.BatchSize, d.cfg.MaxRetries)
	if err != nil {
		logging.Error(ctx, d.logger, "list pending outbox events", zap.Error(err))
		return res
	}
	res.Selected = len(events)
	if len(events) == 0 {
		logging.Debug(ctx, d.logger, "no pending outbox events")
		return res
	}

	for i := range events {
		if ctx.Err() != nil {
			res.Skipped += len(events) - i
			break
		}

		switch d.process(ctx, events[i]) {
		case outcomeSkipped:
			res.Skipped++
		case outcomeCompleted:
			res.Completed++
		case outcomeRetried:
			res.Retried++
		case outcomeFailed:
			res.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("outbox.selected", res.Selected),
		attribute.Int("outbox.completed", res.Completed),
		attribute.Int("outbox.failed", res.Failed),
	)
	logging.Info(ctx, d.logger, "outbox cycle finished",
		zap.Int("selected", res.Selected),
		zap.Int("completed", res.Completed),
		zap.Int("retried", res.Retried),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res
}

func (d *Dispatcher) process(ctx context.Context, event model.OutboxEvent) (result outcome) {
	// Once claimed, the event is seen through to a saved outcome.
	ctx = context.WithoutCancel(ctx)

	ctx, span := tracer.Start(ctx, "outbox.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("outbox.event_id", event.ID.String()),
		attribute.String("outbox.event_type", event.EventType),
	)

	now := d.clock.Now()
	won, err := d.repo.Claim(ctx, event.ID, now)
	if err != nil {
		logging.Error(ctx, d.logger, "claim outbox event", zap.String("event_id", event.ID.String()), zap.Error(err))
		return outcomeSkipped
	}
	if !won {
		return outcomeSkipped
	}
	event.Status = model.OutboxProcessing
	event.UpdatedAt = now

	defer func() {
		if !model.OutboxProcessing.CanTransitionTo(event.Status) {
			logging.Error(ctx, d.logger, "refusing illegal outbox transition",
				zap.String("event_id", event.ID.String()),
				zap.String("status", string(event.Status)),
			)
			result = outcomeSkipped
			return
		}

		event.UpdatedAt = d.clock.Now()
		err := d.repo.Save(ctx, &event)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrConflict):
			// ReleaseStuck took the row back; its state wins.
			logging.Warn(ctx, d.logger, "outbox lease lost, outcome discarded",
				zap.String("event_id", event.ID.String()),
				zap.String("status", string(event.Status)),
			)
			result = outcomeSkipped
		default:
			logging.Error(ctx, d.logger, "save outbox event",
				zap.String("event_id", event.ID.String()),
				zap.String("status", string(event.Status)),
				zap.Error(err),
			)
		}
	}()

	if err := d.deliver(ctx, &event); err != nil {
		span.RecordError(err)
		return d.recordFailure(ctx, &event, err)
	}

	processed := d.clock.Now()
	event.Status = model.OutboxCompleted
	event.ProcessedAt = &processed
	event.LastError = nil

	logging.Info(ctx, d.logger, "outbox event processed",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
	)
	return outcomeCompleted
}

func (d *Dispatcher) deliver(ctx context.Context, event *model.OutboxEvent) error {
	recipient := event.RecipientAddress()
	if recipient == "" {
		logging.Warn(ctx, d.logger, "outbox event has no recipient, skipping send",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
		)
		return nil
	}

	msg, err := BuildMessage(event)
	if errors.Is(err, ErrUnknownEventType) {
		logging.Warn(ctx, d.logger, "unknown outbox event type, skipping send",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
		)
		return nil
	}
	if err != nil {
		// A payload that cannot be decoded will not decode on retry either.
		return apperr.Permanent(err)
	}

	if err := d.send(ctx, recipient, msg); err != nil {
		if errors.Is(err, apperr.ErrTransient) {
			return err
		}
		return apperr.Transient(err)
	}
	return nil
}

// send bounds the notifier call with SendTimeout even if the notifier
// ignores its context.
func (d *Dispatcher) send(ctx context.Context, recipient string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- d.notifier.Send(ctx, recipient, msg.Subject, msg.Body)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notifier timed out after %s: %w", d.cfg.SendTimeout, ctx.Err())
	}
}

// recordFailure charges one retry. Permanent errors and exhausted retries
// end in FAILED; anything else goes back to PENDING.
func (d *Dispatcher) recordFailure(ctx context.Context, event *model.OutboxEvent, err error) outcome {
	event.RetryCount++
	lastError := sanitizeError(err)
	event.LastError = &lastError

	if errors.Is(err, apperr.ErrPermanent) || event.RetryCount >= d.cfg.MaxRetries {
		if !errors.Is(err, apperr.ErrPermanent) {
			err = apperr.Permanent(err)
		}
		event.Status = model.OutboxFailed
		logging.Error(ctx, d.logger, "outbox event failed permanently",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.Int("retry_count", event.RetryCount),
			zap.Error(err),
		)
		return outcomeFailed
	}

	event.Status = model.OutboxPending
	logging.Warn(ctx, d.logger, "outbox event delivery failed, will retry",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Int("retry_count", event.RetryCount),
		zap.Error(err),
	)
	return outcomeRetried
}
