package mq

import "time"

// Routing keys on the escrow.events exchange.
const (
	RoutingKeyProjectCreated     = "escrow.project.created"
	RoutingKeyObjectiveAdded     = "escrow.objective.added"
	RoutingKeyObjectiveFunded    = "escrow.objective.funded"
	RoutingKeyObjectiveCompleted = "escrow.objective.completed"
	RoutingKeyProjectCancelled   = "escrow.project.cancelled"
	RoutingKeyProjectCompleted   = "escrow.project.completed"
	RoutingKeyProjectRefunded    = "escrow.project.refunded"

	// RoutingKeyAll binds a queue to every escrow event.
	RoutingKeyAll = "escrow.#"
)

// RoutingKey maps an event type such as "objective.funded" to its routing key.
func RoutingKey(eventType string) string {
	return "escrow." + eventType
}

// EscrowEventPayload escrow 事件的 payload
type EscrowEventPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProjectID   uint64    `json:"project_id"`
	ObjectiveID *uint64   `json:"objective_id,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Client      string    `json:"client,omitempty"`
	Freelancer  string    `json:"freelancer,omitempty"`
	Prices      []uint64  `json:"prices,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}
