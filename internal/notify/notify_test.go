package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JoelVR17/Trustless-Work-Test/contracts/mq"
	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/outbox"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/trace"
)

type rawMessage struct {
	routingKey string
	messageID  string
	payload    mq.EscrowEventPayload
}

type fakePublisher struct {
	err  error
	sent []rawMessage
}

func (f *fakePublisher) PublishRaw(_ context.Context, routingKey, messageID string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	var p mq.EscrowEventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return err
	}
	f.sent = append(f.sent, rawMessage{routingKey, messageID, p})
	return nil
}

type fakeInserter struct {
	events []*outbox.Event
}

func (f *fakeInserter) InsertEvent(_ context.Context, e *outbox.Event) error {
	f.events = append(f.events, e)
	return nil
}

func fundedEvent() escrow.Event {
	oid := uint64(1)
	return escrow.Event{
		Type:        escrow.EventObjectiveFunded,
		ProjectID:   7,
		ObjectiveID: &oid,
		Amount:      50,
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublisherNotify(t *testing.T) {
	pub := &fakePublisher{}
	n := NewPublisher(pub, zap.NewNop())

	ctx := trace.WithContext(context.Background(), "trace-1")
	n.Notify(ctx, fundedEvent())

	if len(pub.sent) != 1 {
		t.Fatalf("published %d messages", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.routingKey != mq.RoutingKeyObjectiveFunded {
		t.Fatalf("routing key = %q", msg.routingKey)
	}
	if msg.messageID == "" || msg.messageID != msg.payload.EventID {
		t.Fatalf("message id %q does not match event id %q", msg.messageID, msg.payload.EventID)
	}
	if msg.payload.TraceID != "trace-1" {
		t.Fatalf("trace id = %q", msg.payload.TraceID)
	}
	if msg.payload.ProjectID != 7 || *msg.payload.ObjectiveID != 1 || msg.payload.Amount != 50 {
		t.Fatalf("payload = %+v", msg.payload)
	}
}

func TestPublisherFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	n := NewPublisher(&fakePublisher{err: errors.New("broker down")}, zap.New(core))

	n.Notify(context.Background(), fundedEvent())

	if logs.FilterMessage("Failed to publish escrow event").Len() != 1 {
		t.Fatalf("expected one error log, got %v", logs.All())
	}
}

func TestOutboxNotify(t *testing.T) {
	repo := &fakeInserter{}
	NewOutbox(repo, nil).Notify(context.Background(), fundedEvent())

	if len(repo.events) != 1 {
		t.Fatalf("inserted %d events", len(repo.events))
	}
	e := repo.events[0]
	if e.RoutingKey != mq.RoutingKeyObjectiveFunded || e.Status != outbox.StatusPending {
		t.Fatalf("event = %+v", e)
	}
	if e.AggregateID == nil || *e.AggregateID != 7 {
		t.Fatalf("aggregate id = %v", e.AggregateID)
	}
	var p mq.EscrowEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.EventType != "objective.funded" {
		t.Fatalf("payload = %s, %v", e.Payload, err)
	}
}

func TestLogAndMulti(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	pub := &fakePublisher{}
	n := Multi{NewLog(zap.New(core)), NewPublisher(pub, nil)}

	n.Notify(trace.WithContext(context.Background(), "trace-2"), fundedEvent())

	entries := logs.FilterMessage("Escrow event").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d", len(entries))
	}
	if got := entries[0].ContextMap()["trace_id"]; got != "trace-2" {
		t.Fatalf("trace_id field = %v", got)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("multi did not reach publisher")
	}
}
