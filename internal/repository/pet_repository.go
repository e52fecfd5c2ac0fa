package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
)

// PetModel is the GORM model for the pets projection table.
type PetModel struct {
	PetCode   string    `gorm:"type:varchar(64);primaryKey"`
	Name      string    `gorm:"type:varchar(100)"`
	Species   string    `gorm:"type:varchar(50)"`
	Breed     string    `gorm:"type:varchar(100)"`
	Status    string    `gorm:"type:varchar(20);not null;index"`
	SyncedAt  time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (PetModel) TableName() string { return "pets" }

// GormPetRepository implements the pet registry projection using GORM.
type GormPetRepository struct {
	db *gorm.DB
}

func NewGormPetRepository(db *gorm.DB) *GormPetRepository {
	return &GormPetRepository{db: db}
}

func (r *GormPetRepository) Exists(ctx context.Context, petCode string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&PetModel{}).
		Where("pet_code = ? AND status = ?", petCode, string(petDomain.PetStatusActive)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up pet: %w", err)
	}
	return count > 0, nil
}

func (r *GormPetRepository) FindByCodes(ctx context.Context, petCodes []string) (map[string]*petDomain.Pet, error) {
	out := make(map[string]*petDomain.Pet, len(petCodes))
	if len(petCodes) == 0 {
		return out, nil
	}

	var models []PetModel
	if err := r.db.WithContext(ctx).
		Where("pet_code IN ? AND status = ?", petCodes, string(petDomain.PetStatusActive)).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find pets: %w", err)
	}
	for i := range models {
		p := toPetDomain(&models[i])
		out[p.PetCode()] = p
	}
	return out, nil
}

// Upsert inserts the pet or refreshes its display fields and reactivates it.
func (r *GormPetRepository) Upsert(ctx context.Context, pet *petDomain.Pet) error {
	model := toPetModel(pet)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pet_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "species", "breed", "status", "synced_at"}),
	}).Create(model).Error
}

func (r *GormPetRepository) MarkRemoved(ctx context.Context, petCode string) error {
	return r.db.WithContext(ctx).Model(&PetModel{}).
		Where("pet_code = ?", petCode).
		Updates(map[string]interface{}{
			"status":    string(petDomain.PetStatusRemoved),
			"synced_at": time.Now().UTC(),
		}).Error
}

// --- Conversions ---

func toPetModel(p *petDomain.Pet) *PetModel {
	return &PetModel{
		PetCode:   p.PetCode(),
		Name:      p.Name(),
		Species:   p.Species(),
		Breed:     p.Breed(),
		Status:    string(p.Status()),
		SyncedAt:  p.SyncedAt(),
		CreatedAt: p.CreatedAt(),
	}
}

func toPetDomain(m *PetModel) *petDomain.Pet {
	return petDomain.Reconstruct(
		m.PetCode, m.Name, m.Species, m.Breed,
		petDomain.PetStatus(m.Status),
		m.SyncedAt, m.CreatedAt,
	)
}
