package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type fakeOutbox struct {
	mu        sync.Mutex
	events    []*model.OutboxEvent
	processed []uuid.UUID
	retried   map[uuid.UUID]time.Time
	failed    []uuid.UUID
}

func (f *fakeOutbox) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) < limit {
		limit = len(f.events)
	}
	out := f.events[:limit]
	f.events = f.events[limit:]
	return out, nil
}

func (f *fakeOutbox) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutbox) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retried == nil {
		f.retried = map[uuid.UUID]time.Time{}
	}
	f.retried[id] = retryAt
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) CountPending(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events)), nil
}

type fakeBroker struct {
	mu        sync.Mutex
	fail      bool
	published map[string][]json.RawMessage
}

func (b *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broker down")
	}
	if b.published == nil {
		b.published = map[string][]json.RawMessage{}
	}
	b.published[channel] = append(b.published[channel], message.(json.RawMessage))
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func newEvent(t *testing.T, eventType string, retries int) *model.OutboxEvent {
	t.Helper()
	ev, err := model.NewOutboxEvent(eventType, map[string]string{"k": "v"})
	require.NoError(t, err)
	ev.ID = uuid.New()
	ev.RetryCount = retries
	return ev
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		MaxRetries:    3,
		ChannelPrefix: "clinic",
	}
}

func TestProcessBatchPublishes(t *testing.T) {
	store := &fakeOutbox{}
	ev := newEvent(t, model.EventAppointmentBooked, 0)
	store.events = []*model.OutboxEvent{ev}
	broker := &fakeBroker{}

	p := NewOutboxProcessor(store, broker, testConfig(), logger.Nop(), metrics.NewNoop())
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{ev.ID}, store.processed)
	require.Len(t, broker.published["clinic.appointment.booked"], 1)
	assert.JSONEq(t, `{"k":"v"}`, string(broker.published["clinic.appointment.booked"][0]))
}

func TestProcessBatchSchedulesRetry(t *testing.T) {
	store := &fakeOutbox{}
	ev := newEvent(t, model.EventSMSSend, 0)
	store.events = []*model.OutboxEvent{ev}

	p := NewOutboxProcessor(store, &fakeBroker{fail: true}, testConfig(), logger.Nop(), metrics.NewNoop())
	now := time.Now()
	p.now = func() time.Time { return now }

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.processed)
	assert.Equal(t, now.Add(2*time.Millisecond), store.retried[ev.ID])
}

func TestProcessBatchParksExhaustedEvents(t *testing.T) {
	store := &fakeOutbox{}
	ev := newEvent(t, model.EventSMSSend, 2)
	store.events = []*model.OutboxEvent{ev}

	p := NewOutboxProcessor(store, &fakeBroker{fail: true}, testConfig(), logger.Nop(), metrics.NewNoop())
	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{ev.ID}, store.failed)
	assert.Empty(t, store.retried)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
