// Package events publishes change notifications after state-changing store
// operations. A nil *Publisher is valid and publishes nothing.
package events

import (
	"context"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/messaging"
)

// Sink delivers one event. *messaging.Publisher implements it.
type Sink interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Publisher publishes labtrack change events
type Publisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewRabbitPublisher creates a publisher on the configured exchange
func NewRabbitPublisher(rmq *messaging.RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	log = log.WithComponent("events")
	p, err := messaging.NewPublisher(rmq, exchange, source, log)
	if err != nil {
		return nil, err
	}
	return NewPublisher(p, log), nil
}

// NewPublisher wraps an arbitrary sink
func NewPublisher(sink Sink, log *logger.Logger) *Publisher {
	return &Publisher{sink: sink, logger: log}
}

// BatchCreated publishes an inventory.batch.created event
func (p *Publisher) BatchCreated(ctx context.Context, req domain.InboundRequest) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchCreated, messaging.BatchCreatedEvent{
		BatchNo:      req.BatchNo,
		InboundNo:    req.InboundNo,
		MaterialCode: req.MaterialCode,
		Quantity:     req.Quantity,
		ExpiryDate:   req.ExpiryDate,
	})
}

// BatchDeleted publishes an inventory.batch.deleted event
func (p *Publisher) BatchDeleted(ctx context.Context, id int64) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventBatchDeleted, messaging.BatchDeletedEvent{InventoryID: id})
}

// OutboundSubmitted publishes an outbound.submitted event
func (p *Publisher) OutboundSubmitted(ctx context.Context, req domain.ApplyRequest) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventOutboundSubmitted, messaging.OutboundSubmittedEvent{
		InventoryID: req.InventoryID,
		Quantity:    req.Quantity,
		Purpose:     req.Purpose,
		OpeningDate: req.OpeningDate,
	})
}

// OutboundAudited publishes an outbound.audited event
func (p *Publisher) OutboundAudited(ctx context.Context, req domain.AuditRequest) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventOutboundAudited, messaging.OutboundAuditedEvent{
		OutboundID: req.ID,
		Decision:   string(req.Decision()),
		Opinion:    req.Opinion,
	})
}

// OutboundFinished publishes an outbound.finished event
func (p *Publisher) OutboundFinished(ctx context.Context, id int64) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventOutboundFinished, messaging.OutboundFinishedEvent{OutboundID: id})
}

// publish never fails the caller; the server already accepted the change.
func (p *Publisher) publish(ctx context.Context, eventType string, data interface{}) {
	if err := p.sink.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
