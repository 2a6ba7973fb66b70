package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, string, string) (Delivery, error) {
	f.calls++
	return Delivery{}, errors.New("gateway down")
}

func TestOutboxSenderQueuesEvent(t *testing.T) {
	store := memory.New()
	sender := NewOutboxSender(store.Outbox())

	delivery, err := sender.Send(context.Background(), "9876543210", "hello")
	require.NoError(t, err)
	assert.True(t, delivery.Delivered)
	assert.NotEmpty(t, delivery.ProviderRef)

	events := store.Snapshot().OutboxByType(model.EventSMSSend)
	require.Len(t, events, 1)
	var msg SMSMessage
	require.NoError(t, json.Unmarshal(events[0].Payload, &msg))
	assert.Equal(t, SMSMessage{Phone: "9876543210", Message: "hello"}, msg)
}

func TestLogSenderMasksPhone(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewLogSender(zap.New(core))

	delivery, err := sender.Send(context.Background(), "9876543210", "hi")
	require.NoError(t, err)
	assert.True(t, delivery.Delivered)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "******3210", fields["to"])
	assert.Equal(t, delivery.ProviderRef, fields["ref"])
}

func TestHandleEvent(t *testing.T) {
	sender := NewLogSender(nil)

	_, err := HandleEvent(context.Background(), sender, []byte(`{"phone":"9876543210","message":"x"}`))
	assert.NoError(t, err)

	_, err = HandleEvent(context.Background(), sender, []byte(`{"phone":""}`))
	assert.Error(t, err)

	_, err = HandleEvent(context.Background(), sender, []byte(`not json`))
	assert.Error(t, err)
}

func TestNotifySwallowsFailures(t *testing.T) {
	m := metrics.NewNoop()
	sender := &failingSender{}
	svc := NewService(sender, logger.Nop(), m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Notify(ctx, "9876543210", "hello")
	svc.Notify(ctx, "", "skipped")

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsSent.WithLabelValues("error")))
}

func TestNotifyCountsSent(t *testing.T) {
	m := metrics.NewNoop()
	svc := NewService(NewLogSender(nil), logger.Nop(), m)

	svc.Notify(context.Background(), "9876543210", "hello")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsSent.WithLabelValues("sent")))
}
