package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	contract "github.com/JoelVR17/Trustless-Work-Test/contracts/mq"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/metrics"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/mq"
)

const handlerName = "escrow_event_observer"

// Deduper is satisfied by *util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, eventID string) bool
}

// EventLog is satisfied by *repository.EventLogRepository.
type EventLog interface {
	Insert(ctx context.Context, p *contract.EscrowEventPayload) (bool, error)
}

// MalformedEventError marks payloads that can never be processed; the
// consumer dead-letters them without retrying.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return "malformed escrow event: " + e.Reason
}

type EscrowEventHandler struct {
	deduper Deduper
	events  EventLog
	logger  *zap.Logger
}

// NewEscrowEventHandler creates the observer. deduper and events are optional.
func NewEscrowEventHandler(deduper Deduper, events EventLog, logger *zap.Logger) *EscrowEventHandler {
	return &EscrowEventHandler{
		deduper: deduper,
		events:  events,
		logger:  logger,
	}
}

// Handle -- 校验、去重、记录 escrow 事件
func (h *EscrowEventHandler) Handle(ctx context.Context, msg mq.Message) error {
	log := logger.WithTrace(ctx, h.logger).With(zap.String("routing_key", msg.RoutingKey))

	var p contract.EscrowEventPayload
	if err := json.Unmarshal(msg.Body, &p); err != nil {
		log.Error("Failed to unmarshal escrow event payload", zap.Error(err))
		return fmt.Errorf("decode escrow event: %w", err)
	}
	if err := validate(msg.RoutingKey, &p); err != nil {
		log.Error("Rejected escrow event", zap.Error(err))
		return err
	}

	log = log.With(
		zap.String("event_id", p.EventID),
		zap.String("event_type", p.EventType),
		zap.Uint64("project_id", p.ProjectID),
	)

	// event log 自带按 event_id 的幂等；没有 event log 时才用 redis 去重
	switch {
	case h.events != nil:
		written, err := h.events.Insert(ctx, &p)
		if err != nil {
			log.Error("Failed to record escrow event", zap.Error(err))
			return err
		}
		if !written {
			log.Info("Escrow event already recorded")
			return nil
		}
	case h.deduper != nil:
		if !h.deduper.AcquireOnce(ctx, handlerName, p.EventID) {
			return nil
		}
	}

	metrics.IncrementEscrowEventObserved(msg.RoutingKey)

	fields := []zap.Field{}
	if p.ObjectiveID != nil {
		fields = append(fields, zap.Uint64("objective_id", *p.ObjectiveID))
	}
	if p.Amount > 0 {
		fields = append(fields, zap.Uint64("amount", p.Amount))
	}
	log.Info("Escrow event observed", fields...)
	return nil
}

func validate(routingKey string, p *contract.EscrowEventPayload) error {
	switch {
	case p.EventID == "":
		return &MalformedEventError{Reason: "missing event_id"}
	case p.EventType == "":
		return &MalformedEventError{Reason: "missing event_type"}
	case p.ProjectID == 0:
		return &MalformedEventError{Reason: "missing project_id"}
	case !strings.HasPrefix(routingKey, "escrow."):
		return &MalformedEventError{Reason: "unexpected routing key " + routingKey}
	case contract.RoutingKey(p.EventType) != routingKey:
		return &MalformedEventError{Reason: fmt.Sprintf("event type %q does not match routing key %q", p.EventType, routingKey)}
	}
	return nil
}
