package outbox_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/outbox"
	"github.com/Shivanand-hulikatti/bookable/internal/repository/memory"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

type sent struct {
	recipient, subject, body string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []sent
	send  func(ctx context.Context) error
}

func (n *fakeNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	n.mu.Lock()
	n.calls = append(n.calls, sent{recipient, subject, body})
	send := n.send
	n.mu.Unlock()

	if send != nil {
		return send(ctx)
	}
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func testConfig() outbox.Config {
	cfg := outbox.DefaultConfig()
	cfg.SendTimeout = 200 * time.Millisecond
	return cfg
}

func enqueue(t *testing.T, store *memory.Store, eventType string, payload any, recipient string, at time.Time) *model.OutboxEvent {
	t.Helper()

	event, err := model.NewOutboxEvent(eventType, payload, recipient, at)
	require.NoError(t, err)
	require.NoError(t, store.InTx(context.Background(), func(tx service.Tx) error {
		return tx.AppendOutboxEvent(context.Background(), event)
	}))
	return event
}

func load(t *testing.T, store *memory.Store, event *model.OutboxEvent) *model.OutboxEvent {
	t.Helper()

	got, err := store.GetOutboxEvent(context.Background(), event.ID)
	require.NoError(t, err)
	return got
}

func TestRunCycleDeliversAndCompletes(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	clk := clock.NewManual(t0)
	d := outbox.NewDispatcher(store, notifier, clk, zap.NewNop(), testConfig())

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)

	res := d.RunCycle(context.Background())
	assert.Equal(t, outbox.CycleResult{Selected: 1, Completed: 1}, res)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "ana@example.com", notifier.calls[0].recipient)
	assert.Equal(t, "Welcome to Our Platform, ana!", notifier.calls[0].subject)

	got := load(t, store, event)
	assert.Equal(t, model.OutboxCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.LastError)

	// A completed event is never selected again.
	res = d.RunCycle(context.Background())
	assert.Equal(t, 0, res.Selected)
	assert.Equal(t, 1, notifier.count())
}

func TestRunCycleProcessesOldestFirstWithinBatch(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	cfg := testConfig()
	cfg.BatchSize = 2
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), cfg)

	enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "third"}, "c@example.com", t0.Add(2*time.Minute))
	enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "first"}, "a@example.com", t0)
	enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "second"}, "b@example.com", t0.Add(time.Minute))

	res := d.RunCycle(context.Background())
	assert.Equal(t, 2, res.Selected)
	require.Len(t, notifier.calls, 2)
	assert.Equal(t, "a@example.com", notifier.calls[0].recipient)
	assert.Equal(t, "b@example.com", notifier.calls[1].recipient)

	res = d.RunCycle(context.Background())
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, "c@example.com", notifier.calls[2].recipient)
}

func TestRunCycleRetriesThenFails(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{send: func(context.Context) error {
		return errors.New("dial tcp: connection refused, password=hunter2")
	}}
	cfg := testConfig()
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), cfg)

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)

	for cycle := 1; cycle < cfg.MaxRetries; cycle++ {
		res := d.RunCycle(context.Background())
		assert.Equal(t, 1, res.Retried, "cycle %d", cycle)

		got := load(t, store, event)
		assert.Equal(t, model.OutboxPending, got.Status)
		assert.Equal(t, cycle, got.RetryCount)
	}

	res := d.RunCycle(context.Background())
	assert.Equal(t, 1, res.Failed)

	got := load(t, store, event)
	assert.Equal(t, model.OutboxFailed, got.Status)
	assert.Equal(t, cfg.MaxRetries, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "connection refused")
	assert.NotContains(t, *got.LastError, "hunter2")
	assert.Nil(t, got.ProcessedAt)

	res = d.RunCycle(context.Background())
	assert.Equal(t, 0, res.Selected)
	assert.Equal(t, cfg.MaxRetries, notifier.count())
}

func TestRunCycleRecoversAfterTransientFailure(t *testing.T) {
	store := memory.NewStore()
	fail := true
	notifier := &fakeNotifier{}
	notifier.send = func(context.Context) error {
		if fail {
			return errors.New("421 service not available")
		}
		return nil
	}
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), testConfig())

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)

	d.RunCycle(context.Background())
	fail = false
	d.RunCycle(context.Background())

	got := load(t, store, event)
	assert.Equal(t, model.OutboxCompleted, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Nil(t, got.LastError)
}

func TestRunCycleWithoutRecipientCompletesSilently(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), testConfig())

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ghost"}, "", t0)

	res := d.RunCycle(context.Background())
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, model.OutboxCompleted, load(t, store, event).Status)
}

func TestRunCycleUnknownTypeCompletesWithoutSend(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), testConfig())

	event := enqueue(t, store, "INVOICE_ISSUED", map[string]string{"id": "1"}, "ana@example.com", t0)

	res := d.RunCycle(context.Background())
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, model.OutboxCompleted, load(t, store, event).Status)
}

func TestRunCycleTimesOutSlowNotifier(t *testing.T) {
	store := memory.NewStore()
	release := make(chan struct{})
	defer close(release)
	notifier := &fakeNotifier{send: func(context.Context) error {
		<-release
		return nil
	}}
	cfg := testConfig()
	cfg.SendTimeout = 20 * time.Millisecond
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), cfg)

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)

	res := d.RunCycle(context.Background())
	assert.Equal(t, 1, res.Retried)

	got := load(t, store, event)
	assert.Equal(t, model.OutboxPending, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "timed out")
}

func TestRunCycleReleasesStuckProcessing(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	clk := clock.NewManual(t0)
	cfg := testConfig()
	d := outbox.NewDispatcher(store, notifier, clk, zap.NewNop(), cfg)

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)

	// Simulate a dispatcher that claimed the row and died.
	won, err := store.Claim(context.Background(), event.ID, t0)
	require.NoError(t, err)
	require.True(t, won)

	res := d.RunCycle(context.Background())
	assert.Equal(t, 0, res.Released, "lease has not expired yet")
	assert.Equal(t, 0, res.Selected)

	clk.Advance(cfg.StuckAfter + time.Second)
	res = d.RunCycle(context.Background())
	assert.Equal(t, 1, res.Released)
	assert.Equal(t, 1, res.Completed)

	got := load(t, store, event)
	assert.Equal(t, model.OutboxCompleted, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestRunCycleDiscardsOutcomeAfterLeaseLoss(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	notifier.send = func(ctx context.Context) error {
		// Another dispatcher decides this row was abandoned mid-send.
		_, err := store.ReleaseStuck(ctx, t0.Add(time.Hour), 5, t0.Add(time.Hour))
		return err
	}
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), testConfig())

	event := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)

	res := d.RunCycle(context.Background())
	assert.Equal(t, outbox.CycleResult{Selected: 1, Skipped: 1}, res)

	got := load(t, store, event)
	assert.Equal(t, model.OutboxPending, got.Status, "released state is kept")
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "processing lease expired", *got.LastError)
	assert.Nil(t, got.ProcessedAt)
}

func TestRunCycleFailsUndecodablePayloadImmediately(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	d := outbox.NewDispatcher(store, notifier, clock.NewManual(t0), zap.NewNop(), testConfig())

	event := enqueue(t, store, model.EventBookingConfirmed, "oops", "ana@example.com", t0)

	res := d.RunCycle(context.Background())
	assert.Equal(t, outbox.CycleResult{Selected: 1, Failed: 1}, res)
	assert.Equal(t, 0, notifier.count())

	got := load(t, store, event)
	assert.Equal(t, model.OutboxFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "decode BOOKING_CONFIRMED payload")
}

func TestRunCycleRecordsOpenBreakerOnce(t *testing.T) {
	store := memory.NewStore()
	inner := &fakeNotifier{send: func(context.Context) error {
		return errors.New("421 service not available")
	}}
	breaker := outbox.NewBreakerNotifier(inner, outbox.BreakerSettings{ConsecutiveFailures: 1, Timeout: time.Minute}, zap.NewNop())
	d := outbox.NewDispatcher(store, breaker, clock.NewManual(t0), zap.NewNop(), testConfig())

	first := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", t0)
	second := enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "bo"}, "bo@example.com", t0.Add(time.Minute))

	res := d.RunCycle(context.Background())
	assert.Equal(t, 2, res.Retried)
	assert.Equal(t, 1, inner.count(), "open breaker short-circuits the second send")

	prefix := apperr.ErrTransient.Error()
	for _, event := range []*model.OutboxEvent{first, second} {
		got := load(t, store, event)
		assert.Equal(t, model.OutboxPending, got.Status)
		require.NotNil(t, got.LastError)
		assert.Equal(t, 1, strings.Count(*got.LastError, prefix), *got.LastError)
	}
}

func TestRunAndShutdown(t *testing.T) {
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	d := outbox.NewDispatcher(store, notifier, clock.Real{}, zap.NewNop(), cfg)

	enqueue(t, store, model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", time.Now())

	errc := make(chan error, 1)
	go func() { errc <- d.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	require.NoError(t, <-errc)

	assert.NoError(t, d.Shutdown(ctx), "shutdown of a stopped dispatcher is a no-op")
}
