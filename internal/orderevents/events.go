// Package orderevents follows order lifecycle events published by the order
// service and invalidates cached dashboard statistics when orders change.
package orderevents

import (
	"encoding/json"
	"time"
)

// Event types emitted by the order service.
const (
	EventOrderCreated          = "OrderCreated"
	EventSubOrderStatusChanged = "SubOrderStatusChanged"
	EventOrderDeleted          = "OrderDeleted"
)

// Envelope wraps every message on the order events topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// SubOrderStatusChangedPayload is the payload of EventSubOrderStatusChanged.
type SubOrderStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	SubOrderID string `json:"sub_order_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// affectsStats reports whether the event type can change a report.
func affectsStats(eventType string) bool {
	switch eventType {
	case EventOrderCreated, EventSubOrderStatusChanged, EventOrderDeleted:
		return true
	default:
		return false
	}
}
