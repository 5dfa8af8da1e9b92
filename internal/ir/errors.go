package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies an error category in text and JSON output.
type ErrorCode string

const (
	// ErrCodeModelValidation indicates a structural, instrument or registry
	// definition that can never be evaluated.
	ErrCodeModelValidation ErrorCode = "MODEL_VALIDATION"

	// ErrCodeConstraintCycle indicates constrained parameters that depend
	// on each other.
	ErrCodeConstraintCycle ErrorCode = "CONSTRAINT_CYCLE"

	// ErrCodeInvalidExperimentData indicates malformed observed arrays.
	ErrCodeInvalidExperimentData ErrorCode = "INVALID_EXPERIMENT_DATA"

	// ErrCodeNumericalDivergence indicates a non-finite residual or
	// Jacobian entry during refinement.
	ErrCodeNumericalDivergence ErrorCode = "NUMERICAL_DIVERGENCE"
)

// ModelValidationError reports an invalid model definition.
// Raised at construction, never retried.
type ModelValidationError struct {
	// Subject is the model, site, instrument or parameter key at fault.
	Subject string
	Message string
}

func (e *ModelValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", ErrCodeModelValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrCodeModelValidation, e.Subject, e.Message)
}

// Code returns the error category.
func (e *ModelValidationError) Code() ErrorCode { return ErrCodeModelValidation }

// ConstraintCycleError reports a cyclic constraint graph.
type ConstraintCycleError struct {
	// Path lists the keys along the cycle; the first key is repeated at
	// the end.
	Path []string
}

func (e *ConstraintCycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeConstraintCycle, strings.Join(e.Path, " -> "))
}

// Code returns the error category.
func (e *ConstraintCycleError) Code() ErrorCode { return ErrCodeConstraintCycle }

// InvalidExperimentDataError reports malformed observed data.
type InvalidExperimentDataError struct {
	Experiment string
	Message    string
}

func (e *InvalidExperimentDataError) Error() string {
	return fmt.Sprintf("%s: experiment %q: %s", ErrCodeInvalidExperimentData, e.Experiment, e.Message)
}

// Code returns the error category.
func (e *InvalidExperimentDataError) Code() ErrorCode { return ErrCodeInvalidExperimentData }

// NumericalDivergenceError reports a non-finite value during refinement.
type NumericalDivergenceError struct {
	Iteration int
	// Where is "residual" or "jacobian".
	Where string
	// Key is the parameter column for Jacobian failures.
	Key string
}

func (e *NumericalDivergenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: non-finite %s for %s at iteration %d", ErrCodeNumericalDivergence, e.Where, e.Key, e.Iteration)
	}
	return fmt.Sprintf("%s: non-finite %s at iteration %d", ErrCodeNumericalDivergence, e.Where, e.Iteration)
}

// Code returns the error category.
func (e *NumericalDivergenceError) Code() ErrorCode { return ErrCodeNumericalDivergence }

// IsModelValidation returns true if err wraps a ModelValidationError.
func IsModelValidation(err error) bool {
	var target *ModelValidationError
	return errors.As(err, &target)
}

// IsConstraintCycle returns true if err wraps a ConstraintCycleError.
func IsConstraintCycle(err error) bool {
	var target *ConstraintCycleError
	return errors.As(err, &target)
}

// IsInvalidExperimentData returns true if err wraps an
// InvalidExperimentDataError.
func IsInvalidExperimentData(err error) bool {
	var target *InvalidExperimentDataError
	return errors.As(err, &target)
}

// IsNumericalDivergence returns true if err wraps a
// NumericalDivergenceError.
func IsNumericalDivergence(err error) bool {
	var target *NumericalDivergenceError
	return errors.As(err, &target)
}

// CodeOf returns the category of a taxonomy error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
