package grid_world

import "errors"

// ErrInvalidInput is returned for malformed action sets, out-of-range actions,
// and placements that violate the grid's invariants.
var ErrInvalidInput error = errors.New("invalid input")

// ErrConfiguration is returned when a gridworld cannot be built or populated:
// non-positive dimensions or agent counts, or too few free cells to place every
// agent and goal.
var ErrConfiguration error = errors.New("configuration error")
