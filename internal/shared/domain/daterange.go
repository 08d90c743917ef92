package domain

import (
	"time"
)

// DateRange représente une période calendaire fermée [start, end] à la journée
// DESIGN PATTERN: Value Object (DDD)
//   - Immutable: pas de setters, valeurs fixées à la création
//   - Validation dans le constructeur
//   - Les bornes sont tronquées à minuit UTC, une ligne = un jour
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange crée un DateRange à partir de deux dates incluses
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, NewValidationError("date_range", "start and end are required")
	}
	s, e := TruncateDay(start), TruncateDay(end)
	if e.Before(s) {
		return DateRange{}, NewValidationError("date_range", "end is before start")
	}
	return DateRange{start: s, end: e}, nil
}

// NewDateRangeFromDays crée une fenêtre glissante de `days` jours se terminant à asOf (inclus)
func NewDateRangeFromDays(asOf time.Time, days int) (DateRange, error) {
	if days <= 0 {
		return DateRange{}, NewValidationError("days", "must be positive")
	}
	end := TruncateDay(asOf)
	return DateRange{
		start: end.AddDate(0, 0, -(days - 1)),
		end:   end,
	}, nil
}

// Start retourne la date de début
func (dr DateRange) Start() time.Time {
	return dr.start
}

// End retourne la date de fin
func (dr DateRange) End() time.Time {
	return dr.end
}

// Days retourne le nombre de jours couverts, bornes incluses
func (dr DateRange) Days() int {
	return DaysBetween(dr.start, dr.end) + 1
}

// Contains vérifie si t tombe dans la période
func (dr DateRange) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(dr.start) && !d.After(dr.end)
}

// IsZero vérifie si la période n'a pas été initialisée
func (dr DateRange) IsZero() bool {
	return dr.start.IsZero() && dr.end.IsZero()
}

// TruncateDay ramène t à minuit UTC
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween retourne le nombre de jours calendaires entre a et b (b - a)
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24)
}

// DayLayout format des dates journalières (CSV, Parquet, paramètres)
const DayLayout = "2006-01-02"

// ParseDay accepte une date journalière ou un horodatage RFC3339, ramené en UTC
func ParseDay(value string) (time.Time, error) {
	if t, err := time.Parse(DayLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, NewValidationError("date", "expected "+DayLayout+" or RFC3339, got "+value)
	}
	return t.UTC(), nil
}
