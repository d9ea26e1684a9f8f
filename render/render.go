// render draws gridworld snapshots: as text for the console, and as an RGB
// pixel buffer for image output. Rendering only reads the snapshot.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"marl/grid_world"
)

// DefaultCellPx is the side of one grid cell in rendered frames.
const DefaultCellPx = 40

// Palette returns the color of agent id, cycling through a fixed set.
func Palette(id int) color.RGBA {
	colors := []color.RGBA{
		{228, 26, 28, 255},
		{55, 126, 184, 255},
		{77, 175, 74, 255},
		{152, 78, 163, 255},
		{255, 127, 0, 255},
		{166, 86, 40, 255},
		{247, 129, 191, 255},
	}
	return colors[id%len(colors)]
}

var (
	background = color.RGBA{255, 255, 255, 255}
	gridLine   = color.RGBA{0, 0, 0, 255}
	obstacle   = color.RGBA{128, 128, 128, 255}
)

// Console prints the grid row by row: '#' for obstacles, the agent id for an
// agent, 'g' plus the owner's id for an unoccupied goal, '.' otherwise.
func Console(w io.Writer, snap grid_world.Snapshot) {
	cells := make([][]string, snap.Size.Height)
	for r := range cells {
		cells[r] = make([]string, snap.Size.Width)
		for c := range cells[r] {
			cells[r][c] = " ."
		}
	}
	for _, p := range snap.Obstacles {
		if snap.Size.Contains(p) {
			cells[p.Row][p.Col] = " #"
		}
	}
	for id, p := range snap.Goals {
		cells[p.Row][p.Col] = fmt.Sprintf("g%d", id)
	}
	for id, p := range snap.Agents {
		cells[p.Row][p.Col] = fmt.Sprintf("%2d", id)
	}

	fmt.Fprintf(w, "Step: %d/%d\n", snap.Steps, snap.MaxSteps)
	for _, row := range cells {
		for _, cell := range row {
			fmt.Fprintf(w, "%s ", cell)
		}
		fmt.Fprintln(w)
	}
}

// Frame rasterizes the snapshot with cellPx pixels per cell: grid lines,
// gray obstacles, goals as tinted squares, agents as filled discs, all colored
// by agent id. A non-positive cellPx selects DefaultCellPx.
func Frame(snap grid_world.Snapshot, cellPx int) *image.RGBA {
	if cellPx <= 0 {
		cellPx = DefaultCellPx
	}
	img := image.NewRGBA(image.Rect(0, 0, snap.Size.Width*cellPx+1, snap.Size.Height*cellPx+1))
	fill(img, img.Bounds(), background)

	cellRect := func(p grid_world.Position) image.Rectangle {
		return image.Rect(p.Col*cellPx, p.Row*cellPx, (p.Col+1)*cellPx, (p.Row+1)*cellPx)
	}

	for _, p := range snap.Obstacles {
		if snap.Size.Contains(p) {
			fill(img, cellRect(p), obstacle)
		}
	}
	for id, p := range snap.Goals {
		fill(img, cellRect(p).Inset(2), tint(Palette(id), 0.3))
	}
	for id, p := range snap.Agents {
		disc(img, cellRect(p), cellPx*3/10, Palette(id))
	}

	for r := 0; r <= snap.Size.Height; r++ {
		fill(img, image.Rect(0, r*cellPx, snap.Size.Width*cellPx+1, r*cellPx+1), gridLine)
	}
	for c := 0; c <= snap.Size.Width; c++ {
		fill(img, image.Rect(c*cellPx, 0, c*cellPx+1, snap.Size.Height*cellPx+1), gridLine)
	}
	return img
}

// PNG encodes Frame(snap, cellPx) to w.
func PNG(w io.Writer, snap grid_world.Snapshot, cellPx int) error {
	if err := png.Encode(w, Frame(snap, cellPx)); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return nil
}

func fill(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// disc fills a circle of the given radius centered in cell.
func disc(img *image.RGBA, cell image.Rectangle, radius int, c color.RGBA) {
	cx := (cell.Min.X + cell.Max.X) / 2
	cy := (cell.Min.Y + cell.Max.Y) / 2
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius && (image.Point{x, y}).In(img.Bounds()) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// tint blends c toward white, keeping alpha of its weight.
func tint(c color.RGBA, alpha float64) color.RGBA {
	blend := func(v uint8) uint8 {
		return uint8(float64(v)*alpha + 255*(1-alpha))
	}
	return color.RGBA{blend(c.R), blend(c.G), blend(c.B), 255}
}
