package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types, also used as routing keys
const (
	EventBatchCreated      = "inventory.batch.created"
	EventBatchDeleted      = "inventory.batch.deleted"
	EventOutboundSubmitted = "outbound.submitted"
	EventOutboundAudited   = "outbound.audited"
	EventOutboundFinished  = "outbound.finished"
)

// Routing key patterns
const (
	InventoryEvents = "inventory.#"
	OutboundEvents  = "outbound.#"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// BatchCreatedEvent is published after an inbound record was accepted.
type BatchCreatedEvent struct {
	BatchNo      string `json:"batch_no"`
	InboundNo    string `json:"inbound_no"`
	MaterialCode string `json:"material_code"`
	Quantity     int    `json:"quantity"`
	ExpiryDate   string `json:"expiry_date"`
}

// BatchDeletedEvent is published after a batch was deleted.
type BatchDeletedEvent struct {
	InventoryID int64 `json:"inventory_id"`
}

// OutboundSubmittedEvent is published after a consumption request was filed.
type OutboundSubmittedEvent struct {
	InventoryID int64  `json:"inventory_id"`
	Quantity    int    `json:"quantity"`
	Purpose     string `json:"purpose"`
	OpeningDate string `json:"opening_date"`
}

// OutboundAuditedEvent is published after an approval decision.
type OutboundAuditedEvent struct {
	OutboundID int64  `json:"outbound_id"`
	Decision   string `json:"decision"`
	Opinion    string `json:"opinion,omitempty"`
}

// OutboundFinishedEvent is published after a unit was marked used up.
type OutboundFinishedEvent struct {
	OutboundID int64 `json:"outbound_id"`
}
