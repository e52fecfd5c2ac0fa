package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	ageDomain "github.com/petwelfare/service-agetracker/internal/domain/agetracker"
	"github.com/petwelfare/service-agetracker/internal/platform/domain"
)

const pgUniqueViolation = "23505"

// AgeTrackerModel is the GORM model for the age_trackers table.
type AgeTrackerModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PetCode           string     `gorm:"type:varchar(64);uniqueIndex;not null"`
	InitialAgeValue   float64    `gorm:"type:double precision;not null"`
	InitialAgeUnit    string     `gorm:"type:varchar(10);not null"`
	BirthDate         *time.Time `gorm:"type:timestamptz"`
	CurrentAgeValue   float64    `gorm:"type:double precision;not null;index:idx_age_trackers_current_age,priority:2"`
	CurrentAgeUnit    string     `gorm:"type:varchar(10);not null;index:idx_age_trackers_current_age,priority:1"`
	AgeAnchoredAt     time.Time  `gorm:"type:timestamptz;not null"`
	LastCalculated    time.Time  `gorm:"type:timestamptz;not null"`
	CalculationMethod string     `gorm:"type:varchar(10);not null"`
	Version           int64      `gorm:"not null"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for the GORM model.
func (AgeTrackerModel) TableName() string { return "age_trackers" }

// GormAgeTrackerRepository is the GORM-based implementation of AgeRecordRepository.
type GormAgeTrackerRepository struct {
	db *gorm.DB
}

// NewGormAgeTrackerRepository creates a new GormAgeTrackerRepository.
func NewGormAgeTrackerRepository(db *gorm.DB) *GormAgeTrackerRepository {
	return &GormAgeTrackerRepository{db: db}
}

// Create persists a new age record.
func (r *GormAgeTrackerRepository) Create(ctx context.Context, rec *ageDomain.AgeRecord) error {
	model := toAgeTrackerModel(rec)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.NewDuplicateError("age tracker", rec.PetCode())
		}
		return fmt.Errorf("failed to save age tracker: %w", err)
	}
	return nil
}

// FindByPetCode retrieves the record for a pet.
func (r *GormAgeTrackerRepository) FindByPetCode(ctx context.Context, petCode string) (*ageDomain.AgeRecord, error) {
	var model AgeTrackerModel
	if err := r.db.WithContext(ctx).Where("pet_code = ?", petCode).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("age tracker", petCode)
		}
		return nil, fmt.Errorf("failed to find age tracker: %w", err)
	}
	return toAgeRecordDomain(&model)
}

// Update persists changes with optimistic locking on version.
func (r *GormAgeTrackerRepository) Update(ctx context.Context, rec *ageDomain.AgeRecord) error {
	model := toAgeTrackerModel(rec)
	expectedVersion := rec.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&AgeTrackerModel{}).
		Where("pet_code = ? AND version = ?", model.PetCode, expectedVersion).
		Updates(map[string]interface{}{
			"initial_age_value":  model.InitialAgeValue,
			"initial_age_unit":   model.InitialAgeUnit,
			"birth_date":         model.BirthDate,
			"current_age_value":  model.CurrentAgeValue,
			"current_age_unit":   model.CurrentAgeUnit,
			"age_anchored_at":    model.AgeAnchoredAt,
			"last_calculated":    model.LastCalculated,
			"calculation_method": model.CalculationMethod,
			"version":            model.Version,
			"updated_at":         model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update age tracker: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&AgeTrackerModel{}).Where("pet_code = ?", model.PetCode).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check age tracker: %w", err)
	}
	if count == 0 {
		return domain.NewNotFoundError("age tracker", model.PetCode)
	}
	return domain.NewConflictError("age tracker was modified by another request")
}

// Delete hard-deletes the record and reports whether one existed.
func (r *GormAgeTrackerRepository) Delete(ctx context.Context, petCode string) (bool, error) {
	result := r.db.WithContext(ctx).Where("pet_code = ?", petCode).Delete(&AgeTrackerModel{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete age tracker: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FindAll retrieves every record ordered by pet code.
func (r *GormAgeTrackerRepository) FindAll(ctx context.Context) ([]*ageDomain.AgeRecord, error) {
	var models []AgeTrackerModel
	if err := r.db.WithContext(ctx).Order("pet_code ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list age trackers: %w", err)
	}
	return toAgeRecordDomains(models)
}

// FindByAgeRange retrieves records whose current age is in [min, max] of unit.
func (r *GormAgeTrackerRepository) FindByAgeRange(ctx context.Context, min, max float64, unit ageDomain.Unit) ([]*ageDomain.AgeRecord, error) {
	var models []AgeTrackerModel
	if err := r.db.WithContext(ctx).
		Where("current_age_unit = ? AND current_age_value >= ? AND current_age_value <= ?", string(unit), min, max).
		Order("current_age_value ASC, pet_code ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find age trackers by range: %w", err)
	}
	return toAgeRecordDomains(models)
}

// AggregateStatistics groups current ages by unit.
func (r *GormAgeTrackerRepository) AggregateStatistics(ctx context.Context) ([]ageDomain.UnitStatistics, error) {
	type unitRow struct {
		Unit       string
		Count      int64
		AverageAge float64
		MinAge     float64
		MaxAge     float64
	}
	var rows []unitRow
	if err := r.db.WithContext(ctx).Model(&AgeTrackerModel{}).
		Select("current_age_unit AS unit, COUNT(*) AS count, AVG(current_age_value) AS average_age, " +
			"MIN(current_age_value) AS min_age, MAX(current_age_value) AS max_age").
		Group("current_age_unit").
		Order("current_age_unit").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate age statistics: %w", err)
	}

	stats := make([]ageDomain.UnitStatistics, len(rows))
	for i, row := range rows {
		stats[i] = ageDomain.UnitStatistics{
			Unit:       ageDomain.Unit(row.Unit),
			Count:      row.Count,
			AverageAge: row.AverageAge,
			MinAge:     row.MinAge,
			MaxAge:     row.MaxAge,
		}
	}
	return stats, nil
}

// Ping checks the database connection.
func (r *GormAgeTrackerRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// --- Conversion Helpers ---

func toAgeTrackerModel(rec *ageDomain.AgeRecord) *AgeTrackerModel {
	return &AgeTrackerModel{
		ID:                rec.ID(),
		PetCode:           rec.PetCode(),
		InitialAgeValue:   rec.InitialAge().Value,
		InitialAgeUnit:    string(rec.InitialAge().Unit),
		BirthDate:         rec.BirthDate(),
		CurrentAgeValue:   rec.CurrentAge().Value,
		CurrentAgeUnit:    string(rec.CurrentAge().Unit),
		AgeAnchoredAt:     rec.AgeAnchoredAt(),
		LastCalculated:    rec.LastCalculated(),
		CalculationMethod: string(rec.CalculationMethod()),
		Version:           rec.Version(),
		CreatedAt:         rec.CreatedAt(),
		UpdatedAt:         rec.UpdatedAt(),
	}
}

func toAgeRecordDomain(m *AgeTrackerModel) (*ageDomain.AgeRecord, error) {
	initialUnit, err := ageDomain.ParseUnit(m.InitialAgeUnit)
	if err != nil {
		return nil, err
	}
	currentUnit, err := ageDomain.ParseUnit(m.CurrentAgeUnit)
	if err != nil {
		return nil, err
	}
	method, err := ageDomain.ParseCalculationMethod(m.CalculationMethod)
	if err != nil {
		return nil, err
	}

	return ageDomain.Reconstruct(
		m.ID,
		m.PetCode,
		ageDomain.Age{Value: m.InitialAgeValue, Unit: initialUnit},
		m.BirthDate,
		ageDomain.Age{Value: m.CurrentAgeValue, Unit: currentUnit},
		m.AgeAnchoredAt,
		m.LastCalculated,
		method,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toAgeRecordDomains(models []AgeTrackerModel) ([]*ageDomain.AgeRecord, error) {
	records := make([]*ageDomain.AgeRecord, len(models))
	for i := range models {
		rec, err := toAgeRecordDomain(&models[i])
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}
