package escrow

import (
	"context"
	"time"
)

// EventType names a notification emitted after a successful operation.
type EventType string

const (
	EventProjectCreated     EventType = "project.created"
	EventObjectiveAdded     EventType = "objective.added"
	EventObjectiveFunded    EventType = "objective.funded"
	EventObjectiveCompleted EventType = "objective.completed"
	EventProjectCancelled   EventType = "project.cancelled"
	EventProjectCompleted   EventType = "project.completed"
	EventProjectRefunded    EventType = "project.refunded"
)

// Event carries the project id and the operation's key parameters. Fields that
// do not apply to a given type are left zero.
type Event struct {
	Type        EventType
	ProjectID   uint64
	ObjectiveID *uint64
	Amount      uint64
	Client      Address
	Freelancer  Address
	Prices      []uint64
	OccurredAt  time.Time
}

// Notifier receives events fire-and-forget; it must not fail the operation.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func objectiveRef(id uint64) *uint64 {
	return &id
}
