// Package notification delivers SMS messages to patients. Delivery is best
// effort: a failure is logged and counted but never fails the operation that
// triggered it.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const sendTimeout = 5 * time.Second

// Delivery is the sender's receipt for one message.
type Delivery struct {
	Delivered   bool   `json:"delivered"`
	ProviderRef string `json:"provider_ref,omitempty"`
}

// Sender hands a message to a delivery channel.
type Sender interface {
	Send(ctx context.Context, phone, message string) (Delivery, error)
}

// SMSMessage is the payload of an sms.send outbox event.
type SMSMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// OutboxSender queues the message as an sms.send event. The outbox processor
// publishes it to the broker where the SMS gateway consumes it.
type OutboxSender struct {
	outbox repository.OutboxRepository
}

func NewOutboxSender(outbox repository.OutboxRepository) *OutboxSender {
	return &OutboxSender{outbox: outbox}
}

func (s *OutboxSender) Send(ctx context.Context, phone, message string) (Delivery, error) {
	event, err := model.NewOutboxEvent(model.EventSMSSend, SMSMessage{Phone: phone, Message: message})
	if err != nil {
		return Delivery{}, fmt.Errorf("failed to encode sms: %w", err)
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return Delivery{}, fmt.Errorf("failed to queue sms: %w", err)
	}
	return Delivery{Delivered: true, ProviderRef: event.ID.String()}, nil
}

// LogSender writes messages to a zap logger instead of a gateway. Used in
// development and by the worker's dev consumer.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, phone, message string) (Delivery, error) {
	ref := "log-" + uuid.NewString()
	s.log.Info("sms",
		zap.String("to", maskPhone(phone)),
		zap.String("message", message),
		zap.String("ref", ref),
	)
	return Delivery{Delivered: true, ProviderRef: ref}, nil
}

// HandleEvent decodes an sms.send payload and passes it to sender. It is the
// broker handler on the consuming side.
func HandleEvent(ctx context.Context, sender Sender, payload []byte) (Delivery, error) {
	var msg SMSMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Delivery{}, fmt.Errorf("invalid sms payload: %w", err)
	}
	if msg.Phone == "" || msg.Message == "" {
		return Delivery{}, fmt.Errorf("invalid sms payload: phone and message are required")
	}
	return sender.Send(ctx, msg.Phone, msg.Message)
}

type Service interface {
	// Notify sends message to phone. Failures are logged, not returned.
	Notify(ctx context.Context, phone, message string)
}

type service struct {
	sender  Sender
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(sender Sender, log *logger.Logger, m *metrics.Metrics) Service {
	return &service{sender: sender, logger: log, metrics: m}
}

func (s *service) Notify(ctx context.Context, phone, message string) {
	if phone == "" {
		return
	}
	// The request may be finished by the time we get here.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	log := logger.FromContext(ctx, s.logger)
	delivery, err := s.sender.Send(ctx, phone, message)
	if err != nil {
		s.metrics.NotificationsSent.WithLabelValues("error").Inc()
		log.Error(err, "sms delivery failed", "to", maskPhone(phone))
		return
	}
	if !delivery.Delivered {
		s.metrics.NotificationsSent.WithLabelValues("rejected").Inc()
		log.Warn("sms rejected by sender", "to", maskPhone(phone), "ref", delivery.ProviderRef)
		return
	}
	s.metrics.NotificationsSent.WithLabelValues("sent").Inc()
	log.Debug("sms queued", "to", maskPhone(phone), "ref", delivery.ProviderRef)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "******" + phone[len(phone)-4:]
}
