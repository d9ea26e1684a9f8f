// grid_views contains views derived from the Frame view-model.
package grid_views

import (
	"fmt"
	"image/color"
	"strings"

	"marl/grid_world"
	"marl/reinforcement"
	"marl/render"
)

// CellDim is the side of a grid cell in svg pixels.
const CellDim = 60

const (
	emptyFill    = "white"
	obstacleFill = "gray"
	agentRadius  = CellDim * 3 / 10
	goalInset    = 6
)

// Frame flattens episode progress into fields immediately usable as view
// parameters, in svg coordinates where (0,0) is the top left of the grid.
type Frame struct {
	Rows, Cols int
	CellDim    int
	Cells      [][]Cell
	Agents     []Marker
	Goals      []Marker

	Episode   int
	Steps     int
	MaxSteps  int
	AllAtGoal bool
	Returns   []float64
}

// Cell is one grid square.
type Cell struct {
	Row, Col int
	X, Y     int
	Fill     string
}

// Marker places an agent disc or a goal square. X and Y are the top left of the
// marker's box, CX and CY its center.
type Marker struct {
	ID     int
	X, Y   int
	CX, CY int
	Size   int
	Fill   string
}

// Convert builds the view-model for a progress report.
func Convert(p reinforcement.Progress) Frame {
	snap := p.Snapshot
	frame := Frame{
		Rows:      snap.Size.Height,
		Cols:      snap.Size.Width,
		CellDim:   CellDim,
		Cells:     make([][]Cell, snap.Size.Height),
		Episode:   p.Episode,
		Steps:     snap.Steps,
		MaxSteps:  snap.MaxSteps,
		AllAtGoal: snap.AllAtGoal,
		Returns:   append([]float64{}, p.Returns...),
	}

	obstacles := map[grid_world.Position]struct{}{}
	for _, pos := range snap.Obstacles {
		obstacles[pos] = struct{}{}
	}
	for r := range frame.Cells {
		frame.Cells[r] = make([]Cell, snap.Size.Width)
		for c := range frame.Cells[r] {
			fill := emptyFill
			if _, ok := obstacles[grid_world.Position{Row: r, Col: c}]; ok {
				fill = obstacleFill
			}
			frame.Cells[r][c] = Cell{
				Row:  r,
				Col:  c,
				X:    c * CellDim,
				Y:    r * CellDim,
				Fill: fill,
			}
		}
	}

	for id, pos := range snap.Goals {
		frame.Goals = append(frame.Goals, marker(id, pos, CellDim-2*goalInset))
	}
	for id, pos := range snap.Agents {
		frame.Agents = append(frame.Agents, marker(id, pos, agentRadius))
	}
	return frame
}

func marker(id int, pos grid_world.Position, size int) Marker {
	x, y := pos.Col*CellDim, pos.Row*CellDim
	return Marker{
		ID:   id,
		X:    x + goalInset,
		Y:    y + goalInset,
		CX:   x + CellDim/2,
		CY:   y + CellDim/2,
		Size: size,
		Fill: hexColor(render.Palette(id)),
	}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// TeamReturn sums the per-agent returns.
func (f Frame) TeamReturn() float64 {
	sum := 0.0
	for _, r := range f.Returns {
		sum += r
	}
	return sum
}

// StepText is the status line for the step counter.
func (f Frame) StepText() string {
	return fmt.Sprintf("Step %d/%d", f.Steps, f.MaxSteps)
}

// EpisodeText is the status line for the episode counter.
func (f Frame) EpisodeText() string {
	return fmt.Sprintf("Episode %d", f.Episode)
}

// ReturnsText lists the per-agent returns and their sum.
func (f Frame) ReturnsText() string {
	parts := make([]string, len(f.Returns))
	for i, r := range f.Returns {
		parts[i] = fmt.Sprintf("%.2f", r)
	}
	return fmt.Sprintf("Returns [%s] team %.2f", strings.Join(parts, " "), f.TeamReturn())
}

// GoalText reports whether every agent is on its goal.
func (f Frame) GoalText() string {
	if f.AllAtGoal {
		return "All agents at goal"
	}
	return "Searching"
}
