package regress

import (
	"errors"
	"fmt"
)

var (
	ErrTooFewObservations = errors.New("too few observations for the number of terms")
	ErrDegenerateFit      = errors.New("degenerate fit")
	ErrUnknownTerm        = errors.New("unknown term")
	ErrUnknownCovariance  = errors.New("unknown covariance type")
)

// SingularDesignError means the regressors are collinear given the data
type SingularDesignError struct {
	Spec      string
	Condition float64
}

func (e *SingularDesignError) Error() string {
	return fmt.Sprintf("%s: singular design matrix (condition number %.3g)", e.Spec, e.Condition)
}

// InsufficientCoverageError names the design cell that has no observations
type InsufficientCoverageError struct {
	Spec string
	Cell string
}

func (e *InsufficientCoverageError) Error() string {
	return fmt.Sprintf("%s: no observations in cell %s", e.Spec, e.Cell)
}
