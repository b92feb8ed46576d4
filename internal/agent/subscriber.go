package agent

import (
	"context"

	"github.com/labtrack/labtrack-client/pkg/config"
	"github.com/labtrack/labtrack-client/pkg/logger"
	"github.com/labtrack/labtrack-client/pkg/messaging"
)

// Subscriber refetches the affected stores when change notifications arrive.
type Subscriber struct {
	consumer  *messaging.Consumer
	refresher *Refresher
	logger    *logger.Logger
}

// NewSubscriber binds the agent queue to inventory and outbound events.
func NewSubscriber(rmq *messaging.RabbitMQ, cfg *config.RabbitMQConfig, refresher *Refresher, log *logger.Logger) (*Subscriber, error) {
	consumer, err := messaging.NewConsumer(rmq, cfg.Queue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(cfg.Exchange, messaging.InventoryEvents); err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(cfg.Exchange, messaging.OutboundEvents); err != nil {
		return nil, err
	}

	return newSubscriber(consumer, refresher, log), nil
}

func newSubscriber(consumer *messaging.Consumer, refresher *Refresher, log *logger.Logger) *Subscriber {
	s := &Subscriber{
		consumer:  consumer,
		refresher: refresher,
		logger:    log.WithComponent("subscriber"),
	}

	consumer.RegisterHandler(messaging.EventBatchCreated, s.handleBatchCreated)
	consumer.RegisterHandler(messaging.EventBatchDeleted, s.handleBatchDeleted)
	consumer.RegisterHandler(messaging.EventOutboundSubmitted, s.handleOutboundSubmitted)
	consumer.RegisterHandler(messaging.EventOutboundAudited, s.handleOutboundAudited)
	consumer.RegisterHandler(messaging.EventOutboundFinished, s.handleOutboundFinished)

	return s
}

// Start starts consuming messages
func (s *Subscriber) Start(ctx context.Context) error {
	return s.consumer.Start(ctx)
}

func (s *Subscriber) handleBatchCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.BatchCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	s.logger.Info().
		Str("batch_no", data.BatchNo).
		Str("material_code", data.MaterialCode).
		Msg("received batch created event")

	s.refresher.RefreshInventory(ctx)
	return nil
}

func (s *Subscriber) handleBatchDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.BatchDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	s.logger.Info().Int64("inventory_id", data.InventoryID).Msg("received batch deleted event")

	s.refresher.RefreshInventory(ctx)
	return nil
}

func (s *Subscriber) handleOutboundSubmitted(ctx context.Context, event *messaging.Event) error {
	var data messaging.OutboundSubmittedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	s.logger.Info().
		Int64("inventory_id", data.InventoryID).
		Int("quantity", data.Quantity).
		Msg("received outbound submitted event")

	s.refresher.RefreshOutbound(ctx)
	return nil
}

// An approval may deduct stock on the server, so both sides are refetched.
func (s *Subscriber) handleOutboundAudited(ctx context.Context, event *messaging.Event) error {
	var data messaging.OutboundAuditedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	s.logger.Info().
		Int64("outbound_id", data.OutboundID).
		Str("decision", data.Decision).
		Msg("received outbound audited event")

	s.refresher.RefreshOutbound(ctx)
	s.refresher.RefreshInventory(ctx)
	return nil
}

func (s *Subscriber) handleOutboundFinished(ctx context.Context, event *messaging.Event) error {
	var data messaging.OutboundFinishedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	s.logger.Info().Int64("outbound_id", data.OutboundID).Msg("received outbound finished event")

	s.refresher.RefreshOutbound(ctx)
	return nil
}
