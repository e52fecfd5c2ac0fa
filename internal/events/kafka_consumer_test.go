package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/petwelfare/service-agetracker/internal/application"
	"github.com/petwelfare/service-agetracker/internal/platform/domain"
	"github.com/petwelfare/service-agetracker/internal/platform/kafka"
	"github.com/petwelfare/service-agetracker/internal/proto/events"
	"github.com/petwelfare/service-agetracker/internal/repository"
)

func newTestConsumer(t *testing.T) (*PetEventConsumer, *repository.MemoryPetRepository, *application.AgeTrackingService) {
	t.Helper()
	pets := repository.NewMemoryPetRepository()
	svc := application.NewAgeTrackingService(
		repository.NewMemoryAgeTrackerRepository(), pets, nil,
		func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) },
		zaptest.NewLogger(t),
	)
	return &PetEventConsumer{projection: pets, service: svc, logger: zaptest.NewLogger(t)}, pets, svc
}

func petMessage(t *testing.T, eventType string, evt events.PetRegistryEvent) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-pet", eventType, evt)
	require.NoError(t, err)
	value, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Topic: events.TopicPetEvents, Key: []byte(evt.PetCode), Value: value}
}

func TestPetEventConsumer_RegisteredThenUpdated(t *testing.T) {
	c, pets, _ := newTestConsumer(t)
	ctx := context.Background()

	require.NoError(t, c.HandleMessage(ctx, petMessage(t, events.PetRegistered,
		events.PetRegistryEvent{PetCode: "P1", Name: "Milo", Species: "dog", Breed: "beagle"})))

	ok, err := pets.Exists(ctx, "P1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.HandleMessage(ctx, petMessage(t, events.PetUpdated,
		events.PetRegistryEvent{PetCode: "P1", Name: "Milo II", Species: "dog", Breed: "beagle"})))

	found, err := pets.FindByCodes(ctx, []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, "Milo II", found["P1"].Name())
}

func TestPetEventConsumer_RemovedDeletesTracker(t *testing.T) {
	c, pets, svc := newTestConsumer(t)
	ctx := context.Background()

	require.NoError(t, c.HandleMessage(ctx, petMessage(t, events.PetRegistered,
		events.PetRegistryEvent{PetCode: "P1", Name: "Milo"})))

	value := 4.0
	_, err := svc.CreateAgeTracker(ctx, application.CreateAgeTrackerRequest{
		PetCode: "P1", InitialAgeValue: &value, InitialAgeUnit: "months",
	})
	require.NoError(t, err)

	require.NoError(t, c.HandleMessage(ctx, petMessage(t, events.PetRemoved,
		events.PetRegistryEvent{PetCode: "P1"})))

	ok, err := pets.Exists(ctx, "P1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.GetCurrentAge(ctx, "P1")
	assert.True(t, domain.IsNotFound(err))

	// Redelivery is harmless.
	assert.NoError(t, c.HandleMessage(ctx, petMessage(t, events.PetRemoved,
		events.PetRegistryEvent{PetCode: "P1"})))
}

func TestPetEventConsumer_SkipsBadMessages(t *testing.T) {
	c, _, _ := newTestConsumer(t)
	ctx := context.Background()

	assert.NoError(t, c.HandleMessage(ctx, kafkago.Message{Value: []byte("not json")}))
	assert.NoError(t, c.HandleMessage(ctx, petMessage(t, events.PetRegistered, events.PetRegistryEvent{})))
	assert.NoError(t, c.HandleMessage(ctx, petMessage(t, "pet.vaccinated", events.PetRegistryEvent{PetCode: "P1"})))
}
