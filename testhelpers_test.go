//go:build integration

package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/petwelfare/service-agetracker/internal/application"
	petEvents "github.com/petwelfare/service-agetracker/internal/events"
	"github.com/petwelfare/service-agetracker/internal/platform/database"
	"github.com/petwelfare/service-agetracker/internal/platform/kafka"
	"github.com/petwelfare/service-agetracker/internal/proto/events"
	"github.com/petwelfare/service-agetracker/internal/repository"
)

const (
	pgUser     = "agetracker"
	pgPassword = "agetracker"
	pgDatabase = "agetracker_it"
)

// integrationEnv is a running Postgres + Kafka pair with the service wired on top.
// Containers and clients are released through t.Cleanup.
type integrationEnv struct {
	db       *gorm.DB
	brokers  []string
	service  *application.AgeTrackingService
	pets     *repository.GormPetRepository
	consumer *petEvents.PetEventConsumer
	producer *kafka.Producer
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()
	log := zap.NewNop()

	env := &integrationEnv{
		db:      startPostgres(t, log),
		brokers: startKafka(t),
	}
	ensureTopics(t, env.brokers, events.TopicAgeTrackerEvents, events.TopicPetEvents)

	ageRepo := repository.NewGormAgeTrackerRepository(env.db)
	env.pets = repository.NewGormPetRepository(env.db)
	env.producer = kafka.NewProducer(env.brokers, log)
	t.Cleanup(func() { _ = env.producer.Close() })

	env.service = application.NewAgeTrackingService(ageRepo, env.pets, env.producer, time.Now, log)
	env.consumer = petEvents.NewPetEventConsumer(env.brokers, "it-agetracker-"+shortID(), env.pets, env.service, log)
	t.Cleanup(func() { _ = env.consumer.Close() })

	return env
}

func startPostgres(t *testing.T, log *zap.Logger) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := database.PostgresConfig{
		Host:     host,
		Port:     port.Port(),
		User:     pgUser,
		Password: pgPassword,
		DBName:   pgDatabase,
		SSLMode:  "disable",
	}

	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(cfg, log)
		return err == nil
	}, 30*time.Second, time.Second, "postgres never accepted connections")

	require.NoError(t, database.RunMigrations(cfg.DatabaseURL(), "migrations", log))
	return db
}

func startKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	return brokers
}

// ensureTopics creates single-partition topics through the admin API.
func ensureTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := &kafkago.Client{Addr: kafkago.TCP(brokers...), Timeout: 10 * time.Second}
	req := &kafkago.CreateTopicsRequest{}
	for _, topic := range topics {
		req.Topics = append(req.Topics, kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}

	resp, err := client.CreateTopics(ctx, req)
	require.NoError(t, err, "create topics")
	for topic, topicErr := range resp.Errors {
		require.NoError(t, topicErr, "create topic %s", topic)
	}
}

// startConsumer runs the pet event consumer until the test ends and waits for
// it to join its group.
func (e *integrationEnv) startConsumer(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = e.consumer.Start(ctx) }()
	time.Sleep(3 * time.Second)
	return ctx
}

// publishPetEvent emits a pet registry event the way the registry service does.
func (e *integrationEnv) publishPetEvent(t *testing.T, eventType string, evt events.PetRegistryEvent) {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-pet", eventType, evt)
	require.NoError(t, err)
	ce.Subject = evt.PetCode
	require.NoError(t, e.producer.PublishEvent(context.Background(), events.TopicPetEvents, ce))
}

// awaitEvent reads topic from the beginning until match accepts an event or
// timeout elapses.
func (e *integrationEnv) awaitEvent(t *testing.T, topic string, timeout time.Duration, match func(kafka.CloudEvent) bool) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     e.brokers,
		GroupID:     "it-assert-" + shortID(),
		Topic:       topic,
		StartOffset: kafkago.FirstOffset,
		MaxBytes:    10e6,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if ctx.Err() != nil {
			t.Fatalf("no matching event on %s within %s", topic, timeout)
		}
		if err != nil {
			continue
		}
		if ce, err := kafka.ParseCloudEvent(msg.Value); err == nil && match(ce) {
			return ce
		}
	}
}

func ofType(eventType, subject string) func(kafka.CloudEvent) bool {
	return func(ce kafka.CloudEvent) bool {
		return ce.Type == eventType && ce.Subject == subject
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
