package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 2, 0, 0, 0, time.UTC)

	dr, err := NewDateRange(start, end)
	require.NoError(t, err)
	assert.Equal(t, 31, dr.Days())
	assert.Equal(t, TruncateDay(start), dr.Start())
	assert.True(t, dr.Contains(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, dr.Contains(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, err = NewDateRange(end, start)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewDateRange(time.Time{}, end)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewDateRangeFromDays(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

	dr, err := NewDateRangeFromDays(asOf, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, dr.Days())
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), dr.Start())

	_, err = NewDateRangeFromDays(asOf, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2025-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), day)

	ts, err := ParseDay("2025-03-04T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC), ts)

	_, err = ParseDay("04/03/2025")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMoney(t *testing.T) {
	total := ZeroMoney()
	for i := 0; i < 1000; i++ {
		m, err := NewMoney(0.1)
		require.NoError(t, err)
		total = total.Add(m)
	}
	assert.Equal(t, 100.0, total.Amount())
	assert.Equal(t, 0.1, total.Divide(1000).Amount())
	assert.True(t, total.Divide(0).IsZero())

	_, err := NewMoney(-1)
	assert.Error(t, err)
}

func TestRoundCurrency(t *testing.T) {
	assert.Equal(t, 12.35, RoundCurrency(12.345))
	assert.Equal(t, -3.5, RoundCurrency(-3.499999))
	assert.Equal(t, 8.0, RoundCurrency(8))
}

func TestErrorsMatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("segments: %w", NewDataInsufficientError("customers", 30, 2))
	assert.ErrorIs(t, wrapped, ErrDataInsufficient)
	assert.NotErrorIs(t, wrapped, ErrValidation)

	cause := errors.New("singular matrix")
	training := NewModelTrainingError("ols", "fit", cause)
	assert.ErrorIs(t, training, ErrModelTraining)
	assert.ErrorIs(t, training, cause)

	assert.ErrorIs(t, NewTimeoutError("boosting", time.Second, 2*time.Second), ErrTimeout)
	assert.Contains(t, NewValidationError("k_min", "must be >= 2").Error(), "k_min")
}
