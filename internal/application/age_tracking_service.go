package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ageDomain "github.com/petwelfare/service-agetracker/internal/domain/agetracker"
	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
	"github.com/petwelfare/service-agetracker/internal/platform/domain"
	"github.com/petwelfare/service-agetracker/internal/platform/kafka"
	"github.com/petwelfare/service-agetracker/internal/platform/metrics"
	"github.com/petwelfare/service-agetracker/internal/proto/events"
)

const eventSource = "service-agetracker"

// NullableDate distinguishes an absent date field from an explicit null.
type NullableDate struct {
	Set   bool
	Value *time.Time
}

// UnmarshalJSON accepts null, "2006-01-02" or an RFC3339 timestamp.
func (d *NullableDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		d.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("birthDate must be a date string: %w", err)
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Value = &t
	return nil
}

// parseDate reads a date-only value as a calendar day held at UTC midnight.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t.UTC(), nil
}

// CreateAgeTrackerRequest is the request DTO for registering a tracker.
type CreateAgeTrackerRequest struct {
	PetCode         string       `json:"petCode" binding:"required"`
	InitialAgeValue *float64     `json:"initialAgeValue" binding:"required,gte=0"`
	InitialAgeUnit  string       `json:"initialAgeUnit" binding:"required"`
	BirthDate       NullableDate `json:"birthDate"`
}

// UpdateAgeTrackerRequest is a partial patch. The initial age is replaced only
// when both value and unit are present.
type UpdateAgeTrackerRequest struct {
	InitialAgeValue *float64     `json:"initialAgeValue" binding:"omitempty,gte=0"`
	InitialAgeUnit  *string      `json:"initialAgeUnit"`
	BirthDate       NullableDate `json:"birthDate"`
}

// AgeDTO is an age with its display string.
type AgeDTO struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Display string  `json:"display"`
}

// AgeTrackerDTO is the API response representation of a tracker.
type AgeTrackerDTO struct {
	ID                uuid.UUID  `json:"id"`
	PetCode           string     `json:"petCode"`
	InitialAge        AgeDTO     `json:"initialAge"`
	CurrentAge        AgeDTO     `json:"currentAge"`
	BirthDate         *time.Time `json:"birthDate"`
	CalculationMethod string     `json:"calculationMethod"`
	LastCalculated    time.Time  `json:"lastCalculated"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// CurrentAgeDTO is the result of a current-age read.
type CurrentAgeDTO struct {
	PetCode           string     `json:"petCode"`
	InitialAge        AgeDTO     `json:"initialAge"`
	CurrentAge        AgeDTO     `json:"currentAge"`
	BirthDate         *time.Time `json:"birthDate"`
	CalculationMethod string     `json:"calculationMethod"`
	LastCalculated    time.Time  `json:"lastCalculated"`
}

// PetAgeDTO is one row of an age range query, with registry display fields when known.
type PetAgeDTO struct {
	PetCode    string     `json:"petCode"`
	PetName    string     `json:"petName,omitempty"`
	Species    string     `json:"species,omitempty"`
	Breed      string     `json:"breed,omitempty"`
	InitialAge AgeDTO     `json:"initialAge"`
	CurrentAge AgeDTO     `json:"currentAge"`
	BirthDate  *time.Time `json:"birthDate"`
}

// BulkRecalculationResult summarises an UpdateAllAges run.
type BulkRecalculationResult struct {
	UpdatedCount int             `json:"updatedCount"`
	FailedCount  int             `json:"failedCount"`
	Records      []AgeTrackerDTO `json:"-"`
}

// EventPublisher publishes domain events. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// AgeTrackingService implements the age tracking use cases.
type AgeTrackingService struct {
	repo      ageDomain.AgeRecordRepository
	registry  petDomain.Registry
	publisher EventPublisher
	now       func() time.Time
	location  *time.Location
	logger    *zap.Logger
}

// NewAgeTrackingService creates a new AgeTrackingService. publisher may be nil
// when messaging is disabled; now defaults to time.Now.
func NewAgeTrackingService(
	repo ageDomain.AgeRecordRepository,
	registry petDomain.Registry,
	publisher EventPublisher,
	now func() time.Time,
	logger *zap.Logger,
) *AgeTrackingService {
	if now == nil {
		now = time.Now
	}
	return &AgeTrackingService{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		now:       now,
		location:  time.UTC,
		logger:    logger,
	}
}

// WithLocation sets the platform time zone that decides which calendar day is
// "today" when validating birth dates.
func (s *AgeTrackingService) WithLocation(loc *time.Location) *AgeTrackingService {
	if loc != nil {
		s.location = loc
	}
	return s
}

func (s *AgeTrackingService) clock() time.Time {
	return s.now().In(s.location)
}

// CreateAgeTracker registers a tracker for a pet known to the registry.
func (s *AgeTrackingService) CreateAgeTracker(ctx context.Context, req CreateAgeTrackerRequest) (*AgeTrackerDTO, error) {
	const op = "createAgeTracker"
	petCode := strings.TrimSpace(req.PetCode)

	if req.InitialAgeValue == nil {
		return nil, s.fail(op, petCode, domain.NewValidationError("initialAgeValue is required"))
	}
	unit, err := ageDomain.ParseUnit(req.InitialAgeUnit)
	if err != nil {
		return nil, s.fail(op, petCode, domain.NewValidationError(err.Error()))
	}
	initial, err := ageDomain.NewAge(*req.InitialAgeValue, unit)
	if err != nil {
		return nil, s.fail(op, petCode, domain.NewValidationError(err.Error()))
	}

	exists, err := s.registry.Exists(ctx, petCode)
	if err != nil {
		return nil, s.fail(op, petCode, fmt.Errorf("failed to check pet registry: %w", err))
	}
	if !exists {
		return nil, s.fail(op, petCode, domain.NewPetNotFoundError(petCode))
	}

	rec, err := ageDomain.NewAgeRecord(petCode, initial, req.BirthDate.Value, s.clock())
	if err != nil {
		return nil, s.fail(op, petCode, err)
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, s.fail(op, petCode, fmt.Errorf("failed to create age tracker: %w", err))
	}

	s.logger.Info("age tracker created",
		zap.String("pet_code", rec.PetCode()),
		zap.String("calculation_method", string(rec.CalculationMethod())),
		zap.String("current_age", rec.CurrentAge().String()),
	)
	s.publishEvent(ctx, events.AgeTrackerCreated, rec.PetCode(), toChangedEvent(rec))

	result := toAgeTrackerDTO(rec)
	return &result, nil
}

// GetCurrentAge recomputes the pet's age as of now. The result is not persisted.
func (s *AgeTrackingService) GetCurrentAge(ctx context.Context, petCode string) (*CurrentAgeDTO, error) {
	const op = "getCurrentAge"

	rec, err := s.repo.FindByPetCode(ctx, petCode)
	if err != nil {
		return nil, s.fail(op, petCode, err)
	}

	current := ageDomain.ComputeAge(rec, s.clock())
	return &CurrentAgeDTO{
		PetCode:           rec.PetCode(),
		InitialAge:        toAgeDTO(rec.InitialAge()),
		CurrentAge:        toAgeDTO(current),
		BirthDate:         rec.BirthDate(),
		CalculationMethod: string(rec.CalculationMethod()),
		LastCalculated:    rec.LastCalculated(),
	}, nil
}

// UpdateAgeTracker applies a partial patch, recomputes and persists the record.
func (s *AgeTrackingService) UpdateAgeTracker(ctx context.Context, petCode string, req UpdateAgeTrackerRequest) (*AgeTrackerDTO, error) {
	const op = "updateAgeTracker"

	rec, err := s.repo.FindByPetCode(ctx, petCode)
	if err != nil {
		return nil, s.fail(op, petCode, err)
	}

	now := s.clock()
	if req.BirthDate.Set {
		if err := rec.SetBirthDate(req.BirthDate.Value, now); err != nil {
			return nil, s.fail(op, petCode, err)
		}
	}

	if req.InitialAgeValue != nil && req.InitialAgeUnit != nil {
		unit, err := ageDomain.ParseUnit(*req.InitialAgeUnit)
		if err != nil {
			return nil, s.fail(op, petCode, domain.NewValidationError(err.Error()))
		}
		if err := rec.ReplaceInitialAge(ageDomain.Age{Value: *req.InitialAgeValue, Unit: unit}, now); err != nil {
			return nil, s.fail(op, petCode, err)
		}
	} else if req.InitialAgeValue != nil || req.InitialAgeUnit != nil {
		s.logger.Debug("ignoring partial initial age in patch", zap.String("pet_code", petCode))
	}

	rec.Recalculate(now)
	rec.IncrementVersion()

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, s.fail(op, petCode, fmt.Errorf("failed to update age tracker: %w", err))
	}

	s.logger.Info("age tracker updated",
		zap.String("pet_code", petCode),
		zap.String("calculation_method", string(rec.CalculationMethod())),
		zap.String("current_age", rec.CurrentAge().String()),
	)
	s.publishEvent(ctx, events.AgeTrackerUpdated, rec.PetCode(), toChangedEvent(rec))

	result := toAgeTrackerDTO(rec)
	return &result, nil
}

// DeleteAgeTracker hard-deletes the tracker. It reports false when none existed.
func (s *AgeTrackingService) DeleteAgeTracker(ctx context.Context, petCode string) (bool, error) {
	const op = "deleteAgeTracker"

	deleted, err := s.repo.Delete(ctx, petCode)
	if err != nil {
		return false, s.fail(op, petCode, fmt.Errorf("failed to delete age tracker: %w", err))
	}
	if !deleted {
		return false, nil
	}

	s.logger.Info("age tracker deleted", zap.String("pet_code", petCode))
	s.publishEvent(ctx, events.AgeTrackerDeleted, petCode, events.AgeTrackerDeletedEvent{
		PetCode:   petCode,
		DeletedAt: s.clock().UTC(),
	})
	return true, nil
}

// GetPetsByAgeRange returns trackers whose current age is in [min, max] of unit.
func (s *AgeTrackingService) GetPetsByAgeRange(ctx context.Context, min, max float64, unit string) ([]PetAgeDTO, error) {
	const op = "getPetsByAgeRange"

	u, err := ageDomain.ParseUnit(unit)
	if err != nil {
		return nil, s.fail(op, "", domain.NewValidationError(err.Error()))
	}
	if min < 0 || max < min {
		return nil, s.fail(op, "", domain.NewValidationError("age range must satisfy 0 <= minAge <= maxAge"))
	}

	recs, err := s.repo.FindByAgeRange(ctx, min, max, u)
	if err != nil {
		return nil, s.fail(op, "", fmt.Errorf("failed to query age range: %w", err))
	}

	codes := make([]string, len(recs))
	for i, rec := range recs {
		codes[i] = rec.PetCode()
	}
	pets := map[string]*petDomain.Pet{}
	if len(codes) > 0 {
		found, err := s.registry.FindByCodes(ctx, codes)
		if err != nil {
			s.logger.Warn("pet registry lookup failed, returning ages without display fields", zap.Error(err))
		} else {
			pets = found
		}
	}

	result := make([]PetAgeDTO, len(recs))
	for i, rec := range recs {
		dto := PetAgeDTO{
			PetCode:    rec.PetCode(),
			InitialAge: toAgeDTO(rec.InitialAge()),
			CurrentAge: toAgeDTO(rec.CurrentAge()),
			BirthDate:  rec.BirthDate(),
		}
		if p, ok := pets[rec.PetCode()]; ok {
			dto.PetName = p.Name()
			dto.Species = p.Species()
			dto.Breed = p.Breed()
		}
		result[i] = dto
	}
	return result, nil
}

// GetAgeStatistics returns per-unit aggregates of current ages.
func (s *AgeTrackingService) GetAgeStatistics(ctx context.Context) ([]ageDomain.UnitStatistics, error) {
	stats, err := s.repo.AggregateStatistics(ctx)
	if err != nil {
		return nil, s.fail("getAgeStatistics", "", fmt.Errorf("failed to aggregate statistics: %w", err))
	}
	if stats == nil {
		stats = []ageDomain.UnitStatistics{}
	}
	return stats, nil
}

// UpdateAllAges recomputes and persists every tracker, one at a time. A failed
// record is logged and skipped; the returned error joins all such failures.
func (s *AgeTrackingService) UpdateAllAges(ctx context.Context) (*BulkRecalculationResult, error) {
	const op = "updateAllAges"

	recs, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.fail(op, "", fmt.Errorf("failed to load age trackers: %w", err))
	}

	result := &BulkRecalculationResult{Records: make([]AgeTrackerDTO, 0, len(recs))}
	var errs []error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		rec.Recalculate(s.clock())
		rec.IncrementVersion()
		if err := s.repo.Update(ctx, rec); err != nil {
			s.logger.Error("failed to recalculate age tracker",
				zap.String("operation", op),
				zap.String("pet_code", rec.PetCode()),
				zap.Error(err),
			)
			result.FailedCount++
			errs = append(errs, fmt.Errorf("pet %s: %w", rec.PetCode(), err))
			continue
		}
		result.UpdatedCount++
		result.Records = append(result.Records, toAgeTrackerDTO(rec))
	}

	metrics.AddRecalculated(result.UpdatedCount)
	s.logger.Info("age trackers recalculated",
		zap.Int("updated_count", result.UpdatedCount),
		zap.Int("failed_count", result.FailedCount),
	)
	s.publishEvent(ctx, events.AgeTrackerRecalculated, "", events.AgeTrackerRecalculatedEvent{
		UpdatedCount: result.UpdatedCount,
		FailedCount:  result.FailedCount,
		RanAt:        s.clock().UTC(),
	})

	return result, errors.Join(errs...)
}

// fail logs err with the operation and pet code and returns it unchanged.
func (s *AgeTrackingService) fail(op, petCode string, err error) error {
	fields := []zap.Field{zap.String("operation", op), zap.Error(err)}
	if petCode != "" {
		fields = append(fields, zap.String("pet_code", petCode))
	}

	switch domain.CodeOf(err) {
	case domain.CodeInternal:
		s.logger.Error(op+" failed", fields...)
	default:
		s.logger.Warn(op+" rejected", fields...)
	}
	return err
}

func (s *AgeTrackingService) publishEvent(ctx context.Context, eventType, subject string, data interface{}) {
	if s.publisher == nil {
		return
	}

	cloudEvent, err := kafka.NewCloudEvent(eventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}
	cloudEvent.Subject = subject

	if err := s.publisher.PublishEvent(ctx, events.TopicAgeTrackerEvents, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", events.TopicAgeTrackerEvents),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

func toAgeDTO(a ageDomain.Age) AgeDTO {
	return AgeDTO{Value: a.Value, Unit: string(a.Unit), Display: a.String()}
}

func toAgeTrackerDTO(rec *ageDomain.AgeRecord) AgeTrackerDTO {
	return AgeTrackerDTO{
		ID:                rec.ID(),
		PetCode:           rec.PetCode(),
		InitialAge:        toAgeDTO(rec.InitialAge()),
		CurrentAge:        toAgeDTO(rec.CurrentAge()),
		BirthDate:         rec.BirthDate(),
		CalculationMethod: string(rec.CalculationMethod()),
		LastCalculated:    rec.LastCalculated(),
		Version:           rec.Version(),
		CreatedAt:         rec.CreatedAt(),
		UpdatedAt:         rec.UpdatedAt(),
	}
}

func toChangedEvent(rec *ageDomain.AgeRecord) events.AgeTrackerChangedEvent {
	return events.AgeTrackerChangedEvent{
		TrackerID:         rec.ID(),
		PetCode:           rec.PetCode(),
		CurrentAgeValue:   rec.CurrentAge().Value,
		CurrentAgeUnit:    string(rec.CurrentAge().Unit),
		CalculationMethod: string(rec.CalculationMethod()),
		BirthDate:         rec.BirthDate(),
		LastCalculated:    rec.LastCalculated(),
	}
}
