package grid_world

import "fmt"

// Action is a single agent's move for one time step.
type Action int

const (
	Up Action = iota
	Right
	Down
	Left
	Stay
)

// NumActions is the size of the discrete action space.
const NumActions = 5

// Actions lists the action space in index order.
var Actions = []Action{Up, Right, Down, Left, Stay}

func (a Action) String() string {
	switch a {
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	case Left:
		return "left"
	case Stay:
		return "stay"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether a is in the action space.
func (a Action) Valid() bool {
	return a >= Up && a <= Stay
}

// delta returns the row and column displacement of the action. Rows grow downward,
// so Up is a negative row displacement.
func (a Action) delta() (dRow, dCol int) {
	switch a {
	case Up:
		dRow = -1
	case Right:
		dCol = 1
	case Down:
		dRow = 1
	case Left:
		dCol = -1
	}
	return
}
