package pet

import (
	"fmt"
	"strings"
	"time"
)

// PetStatus represents whether the registry still lists a pet.
type PetStatus string

const (
	PetStatusActive  PetStatus = "active"
	PetStatusRemoved PetStatus = "removed"
)

// Pet is the local projection of a pet owned by the platform's pet registry.
type Pet struct {
	petCode   string
	name      string
	species   string
	breed     string
	status    PetStatus
	syncedAt  time.Time
	createdAt time.Time
}

// NewPet validates and builds a registry projection entry.
func NewPet(petCode, name, species, breed string, syncedAt time.Time) (*Pet, error) {
	petCode = strings.TrimSpace(petCode)
	if petCode == "" {
		return nil, fmt.Errorf("pet code is required")
	}
	return &Pet{
		petCode:   petCode,
		name:      strings.TrimSpace(name),
		species:   strings.TrimSpace(species),
		breed:     strings.TrimSpace(breed),
		status:    PetStatusActive,
		syncedAt:  syncedAt.UTC(),
		createdAt: syncedAt.UTC(),
	}, nil
}

// Reconstruct rebuilds a Pet from persistence data (no validation).
func Reconstruct(petCode, name, species, breed string, status PetStatus, syncedAt, createdAt time.Time) *Pet {
	return &Pet{
		petCode:   petCode,
		name:      name,
		species:   species,
		breed:     breed,
		status:    status,
		syncedAt:  syncedAt,
		createdAt: createdAt,
	}
}

// --- Getters ---

func (p *Pet) PetCode() string      { return p.petCode }
func (p *Pet) Name() string         { return p.name }
func (p *Pet) Species() string      { return p.species }
func (p *Pet) Breed() string        { return p.breed }
func (p *Pet) Status() PetStatus    { return p.status }
func (p *Pet) SyncedAt() time.Time  { return p.syncedAt }
func (p *Pet) CreatedAt() time.Time { return p.createdAt }

// IsActive returns true if the registry still lists the pet.
func (p *Pet) IsActive() bool {
	return p.status == PetStatusActive
}
