package agetracker

import (
	"math"
	"time"
)

// Fixed ratios. Month and year lengths are averages, not calendar arithmetic.
const (
	DaysPerWeek  = 7.0
	DaysPerMonth = 30.44
	DaysPerYear  = 365.25

	daysBucketLimit   = 30.0
	monthsBucketLimit = 730.0
	birthdateMaxMonth = 24.0

	floorTolerance = 1e-9
)

// ComputeAge derives the age of rec at now.
//
// With a birth date the age is measured from it directly. Otherwise the initial
// age is converted to days and the days elapsed since the baseline was asserted
// are added. Both branches pick the most legible unit for the magnitude.
func ComputeAge(rec *AgeRecord, now time.Time) Age {
	if rec.CalculationMethod() == MethodBirthdate && rec.BirthDate() != nil {
		return AgeFromBirthDate(*rec.BirthDate(), now)
	}
	return AgeFromBaseline(rec.InitialAge(), rec.AgeAnchoredAt(), now)
}

// AgeFromBirthDate buckets the whole days between birth and now.
func AgeFromBirthDate(birth, now time.Time) Age {
	ageDays := elapsedDays(birth, now)
	if ageDays < daysBucketLimit {
		return Age{Value: ageDays, Unit: UnitDays}
	}
	months := floor(ageDays / DaysPerMonth)
	if months < birthdateMaxMonth {
		return Age{Value: months, Unit: UnitMonths}
	}
	return Age{Value: floor(ageDays / DaysPerYear), Unit: UnitYears}
}

// AgeFromBaseline buckets the baseline plus whole days elapsed since anchor.
func AgeFromBaseline(initial Age, anchor, now time.Time) Age {
	totalDays := initial.Days() + elapsedDays(anchor, now)
	switch {
	case totalDays < daysBucketLimit:
		return Age{Value: floor(totalDays), Unit: UnitDays}
	case totalDays < monthsBucketLimit:
		return Age{Value: floor(totalDays / DaysPerMonth), Unit: UnitMonths}
	default:
		return Age{Value: floor(totalDays / DaysPerYear), Unit: UnitYears}
	}
}

// elapsedDays returns whole days from since to now, clamped at zero.
func elapsedDays(since, now time.Time) float64 {
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}
	return math.Floor(d.Hours() / 24)
}

func floor(x float64) float64 {
	return math.Floor(x + floorTolerance)
}
