package agetracker

import "context"

// UnitStatistics aggregates current ages sharing one unit.
type UnitStatistics struct {
	Unit       Unit    `json:"unit"`
	Count      int64   `json:"count"`
	AverageAge float64 `json:"averageAge"`
	MinAge     float64 `json:"minAge"`
	MaxAge     float64 `json:"maxAge"`
}

// AgeRecordRepository defines persistence operations for age records, keyed by pet code.
type AgeRecordRepository interface {
	// Create fails with a duplicate error if petCode already has a record.
	Create(ctx context.Context, rec *AgeRecord) error
	FindByPetCode(ctx context.Context, petCode string) (*AgeRecord, error)
	// Update persists rec if the stored version is rec.Version()-1.
	Update(ctx context.Context, rec *AgeRecord) error
	// Delete reports whether a record existed.
	Delete(ctx context.Context, petCode string) (bool, error)
	FindAll(ctx context.Context) ([]*AgeRecord, error)
	// FindByAgeRange matches currentAge.unit == unit and min <= currentAge.value <= max.
	FindByAgeRange(ctx context.Context, min, max float64, unit Unit) ([]*AgeRecord, error)
	AggregateStatistics(ctx context.Context) ([]UnitStatistics, error)
	Ping(ctx context.Context) error
}
