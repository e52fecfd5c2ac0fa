package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicAgeTrackerEvents = "age-tracker.events"
	TopicPetEvents        = "pet.events"
)

// Age tracker event types.
const (
	AgeTrackerCreated      = "ageTracker.created"
	AgeTrackerUpdated      = "ageTracker.updated"
	AgeTrackerDeleted      = "ageTracker.deleted"
	AgeTrackerRecalculated = "ageTracker.recalculated"
)

// Pet registry event types.
const (
	PetRegistered = "pet.registered"
	PetUpdated    = "pet.updated"
	PetRemoved    = "pet.removed"
)

// AgeTrackerChangedEvent is published when a tracker is created or updated.
type AgeTrackerChangedEvent struct {
	TrackerID         uuid.UUID  `json:"trackerId"`
	PetCode           string     `json:"petCode"`
	CurrentAgeValue   float64    `json:"currentAgeValue"`
	CurrentAgeUnit    string     `json:"currentAgeUnit"`
	CalculationMethod string     `json:"calculationMethod"`
	BirthDate         *time.Time `json:"birthDate,omitempty"`
	LastCalculated    time.Time  `json:"lastCalculated"`
}

// AgeTrackerDeletedEvent is published when a tracker is removed.
type AgeTrackerDeletedEvent struct {
	PetCode   string    `json:"petCode"`
	DeletedAt time.Time `json:"deletedAt"`
}

// AgeTrackerRecalculatedEvent summarises one bulk recalculation run.
type AgeTrackerRecalculatedEvent struct {
	UpdatedCount int       `json:"updatedCount"`
	FailedCount  int       `json:"failedCount"`
	RanAt        time.Time `json:"ranAt"`
}

// PetRegistryEvent is the payload of every pet.events message.
type PetRegistryEvent struct {
	PetCode string `json:"petCode"`
	Name    string `json:"name"`
	Species string `json:"species"`
	Breed   string `json:"breed"`
}
