package outbox

import (
	"context"
	"encoding/json"
)

// Publisher is the MQ side the dispatcher writes to; *mq.Publisher satisfies it.
type Publisher interface {
	PublishRaw(ctx context.Context, routingKey, messageID string, body []byte) error
}

// NewEvent builds a pending event with payload encoded as JSON.
func NewEvent(aggregateType string, aggregateID *int64, routingKey string, payload interface{}) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}, nil
}

// payloadMeta 从 payload 中提取 event_id 与 trace_id（如果存在）
type payloadMeta struct {
	EventID string `json:"event_id"`
	TraceID string `json:"trace_id"`
}

func readMeta(payload json.RawMessage) payloadMeta {
	var m payloadMeta
	_ = json.Unmarshal(payload, &m)
	return m
}
