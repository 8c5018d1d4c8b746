package repository

import (
	"context"
	"testing"
	"time"

	"github.com/JoelVR17/Trustless-Work-Test/contracts/mq"
)

func TestEventLogRepositoryInsertOnce(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	r := NewEventLogRepository(pool)

	p := &mq.EscrowEventPayload{
		EventID:    "evt-1",
		EventType:  "project.created",
		ProjectID:  4,
		Prices:     []uint64{10, 20},
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	written, err := r.Insert(ctx, p)
	if err != nil || !written {
		t.Fatalf("first insert = %v, %v", written, err)
	}
	written, err = r.Insert(ctx, p)
	if err != nil || written {
		t.Fatalf("duplicate insert = %v, %v", written, err)
	}

	events, err := r.ListByProject(ctx, 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].EventID != "evt-1" || len(events[0].Prices) != 2 {
		t.Fatalf("events = %+v", events)
	}
}
