package worker

import (
	"context"
	"fmt"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/service/notification"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// SMSDispatcher consumes sms.send events relayed by the outbox processor and
// hands them to a Sender.
type SMSDispatcher struct {
	broker  messaging.Broker
	sender  notification.Sender
	channel string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewSMSDispatcher(broker messaging.Broker, sender notification.Sender, channelPrefix string, log *logger.Logger, m *metrics.Metrics) *SMSDispatcher {
	channel := messaging.Channel(channelPrefix, model.EventSMSSend)
	return &SMSDispatcher{
		broker:  broker,
		sender:  sender,
		channel: channel,
		logger:  log.With("channel", channel),
		metrics: m,
	}
}

// Start blocks until ctx is done or the subscription closes.
func (d *SMSDispatcher) Start(ctx context.Context) error {
	messages, err := d.broker.Subscribe(ctx, d.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	d.logger.Info("starting sms dispatcher")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down sms dispatcher")
			return nil
		case payload, ok := <-messages:
			if !ok {
				return nil
			}
			d.dispatch(ctx, payload)
		}
	}
}

func (d *SMSDispatcher) dispatch(ctx context.Context, payload []byte) {
	delivery, err := notification.HandleEvent(ctx, d.sender, payload)
	if err != nil {
		d.metrics.NotificationsSent.WithLabelValues("error").Inc()
		d.logger.Error(err, "failed to dispatch sms")
		return
	}
	if !delivery.Delivered {
		d.metrics.NotificationsSent.WithLabelValues("rejected").Inc()
		d.logger.Warn("sms rejected by sender", "ref", delivery.ProviderRef)
		return
	}
	d.metrics.NotificationsSent.WithLabelValues("delivered").Inc()
}
