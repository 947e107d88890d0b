package nestward

import (
	"errors"
	"fmt"

	"github.com/nestward/nestward/mushroom"
)

var (
	// ErrNoWorld is returned when an operation requires a sensory encoder
	// and none has been set.
	ErrNoWorld = errors.New("no world set")

	// ErrNoRoutes is returned when an operation requires at least one
	// bound route.
	ErrNoRoutes = errors.New("no routes bound")

	// ErrNotReady is returned when a walk is started from the wrong state,
	// for example while another walk is in progress.
	ErrNotReady = errors.New("agent not ready")

	// ErrRouteBound is returned when binding a route whose ID is already
	// bound to the agent.
	ErrRouteBound = errors.New("route already bound")

	// ErrWalkDone is returned by a walk cursor after its terminal step,
	// analogous to iterator exhaustion.
	ErrWalkDone = errors.New("walk done")

	// ErrInvalidOptions is returned when agent options fail validation.
	ErrInvalidOptions = errors.New("invalid options")
)

// ErrDimensionMismatch indicates that the sensory encoder's projection
// vector does not match the memory's configured dimensionality.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError normalizes errors from subpackages into the package's
// public error types.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *mushroom.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, mushroom.ErrInvalidOptions) {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return err
}
