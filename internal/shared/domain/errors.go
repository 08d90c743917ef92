package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinelles utilisées avec errors.Is pour classer les erreurs typées
var (
	ErrDataInsufficient = errors.New("data insufficient")
	ErrModelTraining    = errors.New("model training failed")
	ErrValidation       = errors.New("validation failed")
	ErrTimeout          = errors.New("phase timeout")
)

// DataInsufficientError signale qu'il n'y a pas assez de lignes, paires ou clients
type DataInsufficientError struct {
	Entity   string
	Required int
	Got      int
}

// NewDataInsufficientError crée une nouvelle erreur de données insuffisantes
func NewDataInsufficientError(entity string, required, got int) *DataInsufficientError {
	return &DataInsufficientError{Entity: entity, Required: required, Got: got}
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d, got %d", e.Entity, e.Required, e.Got)
}

// Is permet errors.Is(err, ErrDataInsufficient)
func (e *DataInsufficientError) Is(target error) bool {
	return target == ErrDataInsufficient
}

// ModelTrainingError signale un échec numérique (matrice singulière, non-convergence)
type ModelTrainingError struct {
	Model  string
	Reason string
	Err    error
}

// NewModelTrainingError crée une nouvelle erreur d'entraînement
func NewModelTrainingError(model, reason string, err error) *ModelTrainingError {
	return &ModelTrainingError{Model: model, Reason: reason, Err: err}
}

func (e *ModelTrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training %s: %s: %v", e.Model, e.Reason, e.Err)
	}
	return fmt.Sprintf("training %s: %s", e.Model, e.Reason)
}

// Is permet errors.Is(err, ErrModelTraining)
func (e *ModelTrainingError) Is(target error) bool {
	return target == ErrModelTraining
}

func (e *ModelTrainingError) Unwrap() error {
	return e.Err
}

// ValidationError signale une entrée malformée ou hors domaine
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError crée une nouvelle erreur de validation
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is permet errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TimeoutError signale qu'une phase a dépassé son budget de temps
type TimeoutError struct {
	Phase   string
	Budget  time.Duration
	Elapsed time.Duration
}

// NewTimeoutError crée une nouvelle erreur de dépassement de budget
func NewTimeoutError(phase string, budget, elapsed time.Duration) *TimeoutError {
	return &TimeoutError{Phase: phase, Budget: budget, Elapsed: elapsed}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("phase %s exceeded budget %s (elapsed %s)", e.Phase, e.Budget, e.Elapsed.Round(time.Millisecond))
}

// Is permet errors.Is(err, ErrTimeout)
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
