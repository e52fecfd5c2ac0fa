package agetracker

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petwelfare/service-agetracker/internal/platform/domain"
)

const maxPetAgeYears = 100

// AgeRecord is the aggregate root tracking one pet's age.
type AgeRecord struct {
	id                uuid.UUID
	petCode           string
	initialAge        Age
	birthDate         *time.Time
	currentAge        Age
	ageAnchoredAt     time.Time
	lastCalculated    time.Time
	calculationMethod CalculationMethod
	version           int64
	createdAt         time.Time
	updatedAt         time.Time
}

// NewAgeRecord creates a record for petCode. Without a birth date the current
// age starts equal to the initial age; with one it is computed from the birth date.
func NewAgeRecord(petCode string, initialAge Age, birthDate *time.Time, now time.Time) (*AgeRecord, error) {
	petCode = strings.TrimSpace(petCode)
	if petCode == "" {
		return nil, domain.NewValidationError("pet code is required")
	}
	if _, err := NewAge(initialAge.Value, initialAge.Unit); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if birthDate != nil {
		if err := ValidateBirthDate(*birthDate, now); err != nil {
			return nil, err
		}
	}

	now = now.UTC()
	rec := &AgeRecord{
		id:             uuid.New(),
		petCode:        petCode,
		initialAge:     initialAge,
		birthDate:      copyTime(birthDate),
		currentAge:     initialAge,
		ageAnchoredAt:  now,
		lastCalculated: now,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}
	rec.calculationMethod = methodFor(rec.birthDate)
	if rec.calculationMethod == MethodBirthdate {
		rec.currentAge = ComputeAge(rec, now)
	}
	return rec, nil
}

// Reconstruct rebuilds an AgeRecord from persistence data (no validation).
func Reconstruct(
	id uuid.UUID,
	petCode string,
	initialAge Age,
	birthDate *time.Time,
	currentAge Age,
	ageAnchoredAt, lastCalculated time.Time,
	method CalculationMethod,
	version int64,
	createdAt, updatedAt time.Time,
) *AgeRecord {
	return &AgeRecord{
		id:                id,
		petCode:           petCode,
		initialAge:        initialAge,
		birthDate:         copyTime(birthDate),
		currentAge:        currentAge,
		ageAnchoredAt:     ageAnchoredAt,
		lastCalculated:    lastCalculated,
		calculationMethod: method,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// --- Getters ---

func (r *AgeRecord) ID() uuid.UUID                        { return r.id }
func (r *AgeRecord) PetCode() string                      { return r.petCode }
func (r *AgeRecord) InitialAge() Age                      { return r.initialAge }
func (r *AgeRecord) BirthDate() *time.Time                { return copyTime(r.birthDate) }
func (r *AgeRecord) CurrentAge() Age                      { return r.currentAge }
func (r *AgeRecord) AgeAnchoredAt() time.Time             { return r.ageAnchoredAt }
func (r *AgeRecord) LastCalculated() time.Time            { return r.lastCalculated }
func (r *AgeRecord) CalculationMethod() CalculationMethod { return r.calculationMethod }
func (r *AgeRecord) Version() int64                       { return r.version }
func (r *AgeRecord) CreatedAt() time.Time                 { return r.createdAt }
func (r *AgeRecord) UpdatedAt() time.Time                 { return r.updatedAt }

// --- Behavior ---

// SetBirthDate sets or, with nil, clears the birth date and re-derives the
// calculation method.
func (r *AgeRecord) SetBirthDate(birthDate *time.Time, now time.Time) error {
	if birthDate != nil {
		if err := ValidateBirthDate(*birthDate, now); err != nil {
			return err
		}
	}
	r.birthDate = copyTime(birthDate)
	r.calculationMethod = methodFor(r.birthDate)
	r.updatedAt = now.UTC()
	return nil
}

// ReplaceInitialAge swaps the baseline and re-anchors elapsed time at now.
func (r *AgeRecord) ReplaceInitialAge(age Age, now time.Time) error {
	if _, err := NewAge(age.Value, age.Unit); err != nil {
		return domain.NewValidationError(err.Error())
	}
	r.initialAge = age
	r.ageAnchoredAt = now.UTC()
	r.updatedAt = now.UTC()
	return nil
}

// Recalculate refreshes the current age and stamps lastCalculated.
func (r *AgeRecord) Recalculate(now time.Time) {
	r.currentAge = ComputeAge(r, now)
	r.lastCalculated = now.UTC()
	r.updatedAt = now.UTC()
}

// IncrementVersion bumps the optimistic-lock version.
func (r *AgeRecord) IncrementVersion() {
	r.version++
}

// ValidateBirthDate rejects birth dates in the future or implausibly far in the past.
// The future check is by calendar day: the birth date's day as written against
// today's day in now's location, so a pet born today is accepted in any zone.
func ValidateBirthDate(birthDate, now time.Time) error {
	if calendarDay(birthDate).After(calendarDay(now)) {
		return domain.NewValidationError("birth date cannot be in the future")
	}
	if birthDate.Before(now.AddDate(-maxPetAgeYears, 0, 0)) {
		return domain.NewValidationError("birth date is too far in the past")
	}
	return nil
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func methodFor(birthDate *time.Time) CalculationMethod {
	if birthDate != nil {
		return MethodBirthdate
	}
	return MethodManual
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
