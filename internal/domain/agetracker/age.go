package agetracker

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is the unit an age value is expressed in.
type Unit string

const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
	UnitYears  Unit = "years"
)

// IsValid returns true if the unit is recognized.
func (u Unit) IsValid() bool {
	switch u {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	}
	return false
}

// ParseUnit converts a string to a Unit, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if !u.IsValid() {
		return "", fmt.Errorf("invalid age unit: %s", s)
	}
	return u, nil
}

func (u Unit) singular() string {
	return strings.TrimSuffix(string(u), "s")
}

// CalculationMethod selects which branch derives the current age.
type CalculationMethod string

const (
	MethodManual    CalculationMethod = "manual"
	MethodBirthdate CalculationMethod = "birthdate"
)

// ParseCalculationMethod converts a string to a CalculationMethod.
func ParseCalculationMethod(s string) (CalculationMethod, error) {
	switch m := CalculationMethod(s); m {
	case MethodManual, MethodBirthdate:
		return m, nil
	}
	return "", fmt.Errorf("invalid calculation method: %s", s)
}

// Age is a non-negative magnitude in a unit.
type Age struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// NewAge validates and builds an Age.
func NewAge(value float64, unit Unit) (Age, error) {
	if value < 0 {
		return Age{}, fmt.Errorf("age value cannot be negative")
	}
	if !unit.IsValid() {
		return Age{}, fmt.Errorf("invalid age unit: %s", unit)
	}
	return Age{Value: value, Unit: unit}, nil
}

// Days converts the age to a day count using the fixed ratios.
func (a Age) Days() float64 {
	switch a.Unit {
	case UnitWeeks:
		return a.Value * DaysPerWeek
	case UnitMonths:
		return a.Value * DaysPerMonth
	case UnitYears:
		return a.Value * DaysPerYear
	default:
		return a.Value
	}
}

// String renders the age for display, e.g. "1 month" or "12 months".
func (a Age) String() string {
	n := strconv.FormatFloat(a.Value, 'f', -1, 64)
	if a.Value == 1 {
		return n + " " + a.Unit.singular()
	}
	return n + " " + string(a.Unit)
}
