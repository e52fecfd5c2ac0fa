package events

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/petwelfare/service-agetracker/internal/application"
	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
	"github.com/petwelfare/service-agetracker/internal/platform/kafka"
	"github.com/petwelfare/service-agetracker/internal/proto/events"
)

// PetEventConsumer keeps the local pet registry projection in sync and removes
// age trackers of pets that leave the registry.
type PetEventConsumer struct {
	consumer   *kafka.Consumer
	projection petDomain.Projection
	service    *application.AgeTrackingService
	logger     *zap.Logger
}

// NewPetEventConsumer creates a new PetEventConsumer.
func NewPetEventConsumer(
	brokers []string,
	groupID string,
	projection petDomain.Projection,
	service *application.AgeTrackingService,
	logger *zap.Logger,
) *PetEventConsumer {
	return &PetEventConsumer{
		consumer:   kafka.NewConsumer(brokers, groupID, events.TopicPetEvents, logger),
		projection: projection,
		service:    service,
		logger:     logger,
	}
}

// Start begins consuming pet events. This blocks until the context is cancelled.
func (c *PetEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.HandleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *PetEventConsumer) Close() error {
	return c.consumer.Close()
}

// HandleMessage applies one pet.events message. Malformed messages are logged
// and acknowledged; store failures are returned so the consumer retries the message.
func (c *PetEventConsumer) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from pet topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil
	}

	var evt events.PetRegistryEvent
	if err := cloudEvent.ParseData(&evt); err != nil || evt.PetCode == "" {
		c.logger.Error("invalid pet event payload",
			zap.String("type", cloudEvent.Type),
			zap.Error(err),
		)
		return nil
	}

	switch cloudEvent.Type {
	case events.PetRegistered, events.PetUpdated:
		return c.handleUpsert(ctx, cloudEvent, evt)
	case events.PetRemoved:
		return c.handleRemoved(ctx, evt)
	default:
		c.logger.Debug("ignoring unhandled pet event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *PetEventConsumer) handleUpsert(ctx context.Context, cloudEvent kafka.CloudEvent, evt events.PetRegistryEvent) error {
	pet, err := petDomain.NewPet(evt.PetCode, evt.Name, evt.Species, evt.Breed, cloudEvent.Time)
	if err != nil {
		c.logger.Error("rejected pet event", zap.String("pet_code", evt.PetCode), zap.Error(err))
		return nil
	}

	if err := c.projection.Upsert(ctx, pet); err != nil {
		return fmt.Errorf("failed to upsert pet %s: %w", evt.PetCode, err)
	}

	c.logger.Info("pet registry projection updated",
		zap.String("pet_code", evt.PetCode),
		zap.String("type", cloudEvent.Type),
	)
	return nil
}

func (c *PetEventConsumer) handleRemoved(ctx context.Context, evt events.PetRegistryEvent) error {
	if err := c.projection.MarkRemoved(ctx, evt.PetCode); err != nil {
		return fmt.Errorf("failed to mark pet %s removed: %w", evt.PetCode, err)
	}

	deleted, err := c.service.DeleteAgeTracker(ctx, evt.PetCode)
	if err != nil {
		return fmt.Errorf("failed to delete age tracker for removed pet %s: %w", evt.PetCode, err)
	}

	c.logger.Info("pet removed from registry",
		zap.String("pet_code", evt.PetCode),
		zap.Bool("age_tracker_deleted", deleted),
	)
	return nil
}
