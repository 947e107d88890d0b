package mushroom

import (
	"errors"
	"fmt"
)

// ErrInvalidOptions is returned when network options fail validation.
var ErrInvalidOptions = errors.New("invalid options")

// ErrDimensionMismatch is a named error type for input dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
