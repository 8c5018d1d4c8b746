// Package notify delivers escrow events to logs, RabbitMQ or the outbox table.
package notify

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/contracts/mq"
	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/outbox"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/trace"
)

const deliveryTimeout = 3 * time.Second

// Payload converts an engine event to its wire contract.
func Payload(ctx context.Context, e escrow.Event) mq.EscrowEventPayload {
	return mq.EscrowEventPayload{
		EventID:     uuid.NewString(),
		EventType:   string(e.Type),
		ProjectID:   e.ProjectID,
		ObjectiveID: e.ObjectiveID,
		Amount:      e.Amount,
		Client:      string(e.Client),
		Freelancer:  string(e.Freelancer),
		Prices:      e.Prices,
		OccurredAt:  e.OccurredAt,
		TraceID:     trace.FromContext(ctx),
	}
}

// detached keeps trace values but survives the request being cancelled.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
}

func eventFields(e escrow.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_type", string(e.Type)),
		zap.Uint64("project_id", e.ProjectID),
	}
	if e.ObjectiveID != nil {
		fields = append(fields, zap.Uint64("objective_id", *e.ObjectiveID))
	}
	if e.Amount > 0 {
		fields = append(fields, zap.Uint64("amount", e.Amount))
	}
	return fields
}

// Log writes every event as a structured log line.
type Log struct {
	logger *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{logger: log}
}

func (l *Log) Notify(ctx context.Context, e escrow.Event) {
	logger.WithTrace(ctx, l.logger).Info("Escrow event", eventFields(e)...)
}

// Multi fans an event out to every notifier in order.
type Multi []escrow.Notifier

func (m Multi) Notify(ctx context.Context, e escrow.Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// RawPublisher is satisfied by *pkg/mq.Publisher.
type RawPublisher interface {
	PublishRaw(ctx context.Context, routingKey, messageID string, body []byte) error
}

// Publisher sends events straight to the escrow exchange. Failures are logged
// and dropped.
type Publisher struct {
	publisher RawPublisher
	logger    *zap.Logger
}

func NewPublisher(p RawPublisher, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{publisher: p, logger: log}
}

func (p *Publisher) Notify(ctx context.Context, e escrow.Event) {
	ctx, cancel := detached(ctx)
	defer cancel()

	payload := Payload(ctx, e)
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to encode escrow event", append(eventFields(e), zap.Error(err))...)
		return
	}
	if err := p.publisher.PublishRaw(ctx, mq.RoutingKey(payload.EventType), payload.EventID, body); err != nil {
		logger.WithTrace(ctx, p.logger).Error("Failed to publish escrow event",
			append(eventFields(e), zap.Error(err))...)
	}
}

// EventInserter is satisfied by *pkg/outbox.Repository.
type EventInserter interface {
	InsertEvent(ctx context.Context, event *outbox.Event) error
}

// Outbox records events in outbox_events for the dispatcher to publish.
type Outbox struct {
	repo   EventInserter
	logger *zap.Logger
}

func NewOutbox(repo EventInserter, log *zap.Logger) *Outbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outbox{repo: repo, logger: log}
}

func (o *Outbox) Notify(ctx context.Context, e escrow.Event) {
	ctx, cancel := detached(ctx)
	defer cancel()

	payload := Payload(ctx, e)
	var aggregateID *int64
	if e.ProjectID <= math.MaxInt64 {
		id := int64(e.ProjectID)
		aggregateID = &id
	}
	event, err := outbox.NewEvent("project", aggregateID, mq.RoutingKey(payload.EventType), payload)
	if err != nil {
		o.logger.Error("Failed to encode escrow event", append(eventFields(e), zap.Error(err))...)
		return
	}
	if err := o.repo.InsertEvent(ctx, event); err != nil {
		logger.WithTrace(ctx, o.logger).Error("Failed to write escrow event to outbox",
			append(eventFields(e), zap.Error(err))...)
	}
}

var (
	_ escrow.Notifier = (*Log)(nil)
	_ escrow.Notifier = Multi(nil)
	_ escrow.Notifier = (*Publisher)(nil)
	_ escrow.Notifier = (*Outbox)(nil)
)
