package repository

import (
	"context"
	"sort"
	"sync"

	ageDomain "github.com/petwelfare/service-agetracker/internal/domain/agetracker"
	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
	"github.com/petwelfare/service-agetracker/internal/platform/domain"
)

// MemoryAgeTrackerRepository keeps age records in process memory.
// Used for local runs without a database and in tests.
type MemoryAgeTrackerRepository struct {
	mu        sync.RWMutex
	byPetCode map[string]*ageDomain.AgeRecord
}

func NewMemoryAgeTrackerRepository() *MemoryAgeTrackerRepository {
	return &MemoryAgeTrackerRepository{byPetCode: make(map[string]*ageDomain.AgeRecord)}
}

func (r *MemoryAgeTrackerRepository) Create(ctx context.Context, rec *ageDomain.AgeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPetCode[rec.PetCode()]; exists {
		return domain.NewDuplicateError("age tracker", rec.PetCode())
	}
	r.byPetCode[rec.PetCode()] = clone(rec)
	return nil
}

func (r *MemoryAgeTrackerRepository) FindByPetCode(ctx context.Context, petCode string) (*ageDomain.AgeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byPetCode[petCode]
	if !ok {
		return nil, domain.NewNotFoundError("age tracker", petCode)
	}
	return clone(rec), nil
}

func (r *MemoryAgeTrackerRepository) Update(ctx context.Context, rec *ageDomain.AgeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byPetCode[rec.PetCode()]
	if !ok {
		return domain.NewNotFoundError("age tracker", rec.PetCode())
	}
	if stored.Version() != rec.Version()-1 {
		return domain.NewConflictError("age tracker was modified by another request")
	}
	r.byPetCode[rec.PetCode()] = clone(rec)
	return nil
}

func (r *MemoryAgeTrackerRepository) Delete(ctx context.Context, petCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPetCode[petCode]; !ok {
		return false, nil
	}
	delete(r.byPetCode, petCode)
	return true, nil
}

func (r *MemoryAgeTrackerRepository) FindAll(ctx context.Context) ([]*ageDomain.AgeRecord, error) {
	return r.filter(func(*ageDomain.AgeRecord) bool { return true }), nil
}

func (r *MemoryAgeTrackerRepository) FindByAgeRange(ctx context.Context, min, max float64, unit ageDomain.Unit) ([]*ageDomain.AgeRecord, error) {
	out := r.filter(func(rec *ageDomain.AgeRecord) bool {
		age := rec.CurrentAge()
		return age.Unit == unit && age.Value >= min && age.Value <= max
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CurrentAge().Value < out[j].CurrentAge().Value
	})
	return out, nil
}

func (r *MemoryAgeTrackerRepository) AggregateStatistics(ctx context.Context) ([]ageDomain.UnitStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUnit := make(map[ageDomain.Unit]*ageDomain.UnitStatistics)
	sums := make(map[ageDomain.Unit]float64)
	for _, rec := range r.byPetCode {
		age := rec.CurrentAge()
		s, ok := byUnit[age.Unit]
		if !ok {
			s = &ageDomain.UnitStatistics{Unit: age.Unit, MinAge: age.Value, MaxAge: age.Value}
			byUnit[age.Unit] = s
		}
		s.Count++
		sums[age.Unit] += age.Value
		if age.Value < s.MinAge {
			s.MinAge = age.Value
		}
		if age.Value > s.MaxAge {
			s.MaxAge = age.Value
		}
	}

	stats := make([]ageDomain.UnitStatistics, 0, len(byUnit))
	for unit, s := range byUnit {
		s.AverageAge = sums[unit] / float64(s.Count)
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Unit < stats[j].Unit })
	return stats, nil
}

func (r *MemoryAgeTrackerRepository) Ping(ctx context.Context) error { return nil }

// filter returns copies ordered by pet code.
func (r *MemoryAgeTrackerRepository) filter(keep func(*ageDomain.AgeRecord) bool) []*ageDomain.AgeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ageDomain.AgeRecord, 0, len(r.byPetCode))
	for _, rec := range r.byPetCode {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PetCode() < out[j].PetCode() })
	return out
}

func clone(rec *ageDomain.AgeRecord) *ageDomain.AgeRecord {
	return ageDomain.Reconstruct(
		rec.ID(), rec.PetCode(), rec.InitialAge(), rec.BirthDate(), rec.CurrentAge(),
		rec.AgeAnchoredAt(), rec.LastCalculated(), rec.CalculationMethod(),
		rec.Version(), rec.CreatedAt(), rec.UpdatedAt(),
	)
}

// MemoryPetRepository keeps the pet registry projection in process memory.
type MemoryPetRepository struct {
	mu        sync.RWMutex
	byPetCode map[string]*petDomain.Pet
}

func NewMemoryPetRepository() *MemoryPetRepository {
	return &MemoryPetRepository{byPetCode: make(map[string]*petDomain.Pet)}
}

func (r *MemoryPetRepository) Exists(ctx context.Context, petCode string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byPetCode[petCode]
	return ok && p.IsActive(), nil
}

func (r *MemoryPetRepository) FindByCodes(ctx context.Context, petCodes []string) (map[string]*petDomain.Pet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*petDomain.Pet, len(petCodes))
	for _, code := range petCodes {
		if p, ok := r.byPetCode[code]; ok && p.IsActive() {
			out[code] = p
		}
	}
	return out, nil
}

func (r *MemoryPetRepository) Upsert(ctx context.Context, pet *petDomain.Pet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byPetCode[pet.PetCode()]; ok {
		pet = petDomain.Reconstruct(pet.PetCode(), pet.Name(), pet.Species(), pet.Breed(),
			petDomain.PetStatusActive, pet.SyncedAt(), existing.CreatedAt())
	}
	r.byPetCode[pet.PetCode()] = pet
	return nil
}

func (r *MemoryPetRepository) MarkRemoved(ctx context.Context, petCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byPetCode[petCode]; ok {
		r.byPetCode[petCode] = petDomain.Reconstruct(p.PetCode(), p.Name(), p.Species(), p.Breed(),
			petDomain.PetStatusRemoved, p.SyncedAt(), p.CreatedAt())
	}
	return nil
}
