// plotting writes standalone svg figures for tutorials: learning curves, value
// function heatmaps, and policy arrow grids. Figures are built as small view-models
// and rendered through html/template, so every value in them is escaped.
package plotting

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"sort"
	"strings"

	"marl/curves"
)

const (
	figWidth  = 800
	figHeight = 480
	margin    = 60
	cellPx    = 60
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData error = errors.New("no data to plot")

// palette assigns series colors in order, cycling when exhausted.
var palette = []string{
	"#e41a1c", "#377eb8", "#4daf4a", "#984ea3",
	"#ff7f00", "#a65628", "#f781bf", "#999999",
}

// Color returns the palette color for index i.
func Color(i int) string {
	return palette[i%len(palette)]
}

// CurveOptions configures LearningCurve. Zero values select the defaults.
type CurveOptions struct {
	Window  int
	Title   string
	XLabel  string
	YLabel  string
	ShowStd bool
}

func (opts CurveOptions) withDefaults() CurveOptions {
	if opts.Window <= 0 {
		opts.Window = 100
	}
	if opts.Title == "" {
		opts.Title = "Learning Curve"
	}
	if opts.XLabel == "" {
		opts.XLabel = "Episode"
	}
	if opts.YLabel == "" {
		opts.YLabel = "Return"
	}
	return opts
}

// line is a drawable polyline.
type line struct {
	Label   string
	Color   string
	Opacity float64
	Width   int
	Points  string
}

// chart is the view-model for the curve template.
type chart struct {
	Width, Height int
	Title         string
	XLabel        string
	YLabel        string
	Band          string // svg polygon points, empty for none
	Lines         []line
	Ticks         []tick
	Left, Bottom  int
}

type tick struct {
	X, Y  int
	Label string
}

// axes maps data space into the figure's plot area.
type axes struct {
	minX, maxX, minY, maxY float64
}

func newAxes(series ...curves.Series) (axes, bool) {
	minX, maxX, minY, maxY, ok := curves.Bounds(series...)
	if !ok {
		return axes{}, false
	}
	// Pad degenerate ranges so flat curves still span the plot.
	if maxX == minX {
		maxX = minX + 1
	}
	if maxY == minY {
		minY, maxY = minY-1, maxY+1
	}
	return axes{minX, maxX, minY, maxY}, true
}

func (ax axes) px(x, y float64) (float64, float64) {
	sx := margin + (x-ax.minX)/(ax.maxX-ax.minX)*(figWidth-2*margin)
	sy := figHeight - margin - (y-ax.minY)/(ax.maxY-ax.minY)*(figHeight-2*margin)
	return sx, sy
}

func (ax axes) points(pts []curves.Point) string {
	var sb strings.Builder
	for i, p := range pts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		x, y := ax.px(p.X, p.Y)
		fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
	}
	return sb.String()
}

func (ax axes) yTicks(n int) (ticks []tick) {
	for i := 0; i <= n; i++ {
		v := ax.minY + float64(i)/float64(n)*(ax.maxY-ax.minY)
		_, y := ax.px(ax.minX, v)
		ticks = append(ticks, tick{X: margin - 8, Y: int(y), Label: fmt.Sprintf("%.2f", v)})
	}
	return
}

// LearningCurve plots the raw rewards, their moving average, and optionally a
// one-std band around the average.
func LearningCurve(w io.Writer, rewards []float64, opts CurveOptions) error {
	if len(rewards) == 0 {
		return ErrNoData
	}
	opts = opts.withDefaults()

	raw := curves.Raw("Raw", rewards)
	smoothed := curves.Smoothed(fmt.Sprintf("Moving Average (window=%d)", opts.Window), rewards, opts.Window)

	var upper, lower curves.Series
	if opts.ShowStd && len(rewards) > opts.Window {
		stds := curves.MovingStd(rewards, opts.Window)
		for i, p := range smoothed.Points {
			upper.Points = append(upper.Points, curves.Point{X: p.X, Y: p.Y + stds[i]})
			lower.Points = append(lower.Points, curves.Point{X: p.X, Y: p.Y - stds[i]})
		}
	}

	ax, _ := newAxes(raw, upper, lower)
	c := newChart(opts.Title, opts.XLabel, opts.YLabel, ax)
	c.Lines = append(c.Lines, line{Label: raw.Name, Color: Color(1), Opacity: 0.3, Width: 1, Points: ax.points(raw.Points)})
	if len(smoothed.Points) > 0 {
		c.Lines = append(c.Lines, line{Label: smoothed.Name, Color: Color(0), Opacity: 1, Width: 2, Points: ax.points(smoothed.Points)})
	}
	if len(upper.Points) > 0 {
		band := append(append([]curves.Point{}, upper.Points...), reversed(lower.Points)...)
		c.Band = ax.points(band)
	}
	return curveTemplate.Execute(w, c)
}

// MultiAgentLearningCurves plots each agent's moving-average return. Agents with
// fewer rewards than the window are skipped; ErrNoData is returned if none remain.
func MultiAgentLearningCurves(w io.Writer, agentRewards map[string][]float64, window int, title string) error {
	if window <= 0 {
		window = 100
	}
	if title == "" {
		title = "Multi-Agent Learning Curves"
	}

	names := make([]string, 0, len(agentRewards))
	for name := range agentRewards {
		names = append(names, name)
	}
	sort.Strings(names)

	var series []curves.Series
	for _, name := range names {
		if s := curves.Smoothed(name, agentRewards[name], window); len(s.Points) > 0 {
			series = append(series, s)
		}
	}
	ax, ok := newAxes(series...)
	if !ok {
		return ErrNoData
	}

	c := newChart(title, "Episode", "Average Return", ax)
	for i, s := range series {
		c.Lines = append(c.Lines, line{Label: s.Name, Color: Color(i), Opacity: 1, Width: 2, Points: ax.points(s.Points)})
	}
	return curveTemplate.Execute(w, c)
}

func newChart(title, xlabel, ylabel string, ax axes) *chart {
	return &chart{
		Width:  figWidth,
		Height: figHeight,
		Title:  title,
		XLabel: xlabel,
		YLabel: ylabel,
		Ticks:  ax.yTicks(4),
		Left:   margin,
		Bottom: figHeight - margin,
	}
}

func reversed(pts []curves.Point) []curves.Point {
	out := make([]curves.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

var curveTemplate = template.Must(template.New("curve").Funcs(template.FuncMap{
	"add":    func(i, j int) int { return i + j },
	"sub":    func(i, j int) int { return i - j },
	"div":    func(i, j int) int { return i / j },
	"mult16": func(i int) int { return 16 * i },
}).Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{ .Width }}" height="{{ .Height }}" font-family="sans-serif" font-size="12">
	<rect width="{{ .Width }}" height="{{ .Height }}" fill="white"/>
	<text x="{{ div .Width 2 }}" y="30" text-anchor="middle" font-size="16">{{ .Title }}</text>
	<line x1="{{ .Left }}" y1="{{ .Bottom }}" x2="{{ sub .Width .Left }}" y2="{{ .Bottom }}" stroke="black"/>
	<line x1="{{ .Left }}" y1="{{ .Left }}" x2="{{ .Left }}" y2="{{ .Bottom }}" stroke="black"/>
	{{ range .Ticks }}<text x="{{ .X }}" y="{{ .Y }}" text-anchor="end" dominant-baseline="middle">{{ .Label }}</text>
	{{ end }}<text x="{{ div .Width 2 }}" y="{{ add .Bottom 40 }}" text-anchor="middle">{{ .XLabel }}</text>
	<text x="16" y="{{ div .Height 2 }}" text-anchor="middle" transform="rotate(-90 16 {{ div .Height 2 }})">{{ .YLabel }}</text>
	{{ if .Band }}<polygon points="{{ .Band }}" fill="#e41a1c" fill-opacity="0.2" stroke="none"/>
	{{ end }}{{ range .Lines }}<polyline points="{{ .Points }}" fill="none" stroke="{{ .Color }}" stroke-opacity="{{ .Opacity }}" stroke-width="{{ .Width }}"/>
	{{ end }}{{ range $i, $l := .Lines }}<text x="{{ sub $.Width 200 }}" y="{{ add 60 (mult16 $i) }}" fill="{{ $l.Color }}">{{ $l.Label }}</text>
	{{ end }}</svg>
`))

// heatCell is one value-function cell in svg coordinates.
type heatCell struct {
	X, Y  int
	Fill  string
	Value string
}

type heatmap struct {
	Width, Height int
	Title         string
	Cells         []heatCell
	CellPx        int
}

// ValueFunction plots a 2d value table as a heatmap, row 0 at the top. Each
// cell is shaded from blue (minimum) to red (maximum) and labeled with its value.
func ValueFunction(w io.Writer, values [][]float64, title string) error {
	if len(values) == 0 || len(values[0]) == 0 {
		return ErrNoData
	}
	if title == "" {
		title = "Value Function"
	}

	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, row := range values {
		for _, v := range row {
			minVal, maxVal = math.Min(minVal, v), math.Max(maxVal, v)
		}
	}

	hm := heatmap{
		Width:  len(values[0])*cellPx + 2*margin,
		Height: len(values)*cellPx + 2*margin,
		Title:  title,
		CellPx: cellPx,
	}
	for r, row := range values {
		for c, v := range row {
			hm.Cells = append(hm.Cells, heatCell{
				X:     margin + c*cellPx,
				Y:     margin + r*cellPx,
				Fill:  rgbFill(v, minVal, maxVal),
				Value: fmt.Sprintf("%.2f", v),
			})
		}
	}
	return heatmapTemplate.Execute(w, hm)
}

// rgbFill places v on the red/blue scale between lo and hi.
func rgbFill(v, lo, hi float64) string {
	redPct := 50
	if hi > lo {
		redPct = int(100 * (v - lo) / (hi - lo))
	}
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

var heatmapTemplate = template.Must(template.New("heatmap").Parse(
	`<svg xmlns="http://www.w3.org/2000/svg" width="{{ .Width }}" height="{{ .Height }}" font-family="sans-serif" font-size="12">
	<rect width="{{ .Width }}" height="{{ .Height }}" fill="white"/>
	<text x="{{ .CellPx }}" y="30" font-size="16">{{ .Title }}</text>
	{{ range .Cells }}<rect x="{{ .X }}" y="{{ .Y }}" width="{{ $.CellPx }}" height="{{ $.CellPx }}" fill="{{ .Fill }}" stroke="white"/>
	<text x="{{ .X }}" y="{{ .Y }}" dx="4" dy="16" fill="white">{{ .Value }}</text>
	{{ end }}</svg>
`))

// arrowCell is one policy cell: an up-arrow rotated clockwise by Rotation degrees.
type arrowCell struct {
	X, Y     int // top left
	CX, CY   int // center
	Rotation int
	Draw     bool
}

type policyGrid struct {
	Width, Height int
	Title         string
	Cells         []arrowCell
	CellPx        int
}

// Policy draws an arrow per cell for actions 0-3 (up, right, down, left);
// any other action index leaves the cell empty.
func Policy(w io.Writer, policy [][]int, title string) error {
	if len(policy) == 0 || len(policy[0]) == 0 {
		return ErrNoData
	}
	if title == "" {
		title = "Policy Visualization"
	}

	pg := policyGrid{
		Width:  len(policy[0])*cellPx + 2*margin,
		Height: len(policy)*cellPx + 2*margin,
		Title:  title,
		CellPx: cellPx,
	}
	for r, row := range policy {
		for c, a := range row {
			pg.Cells = append(pg.Cells, arrowCell{
				X:        margin + c*cellPx,
				Y:        margin + r*cellPx,
				CX:       margin + c*cellPx + cellPx/2,
				CY:       margin + r*cellPx + cellPx/2,
				Rotation: 90 * a,
				Draw:     a >= 0 && a < 4,
			})
		}
	}
	return policyTemplate.Execute(w, pg)
}

var policyTemplate = template.Must(template.New("policy").Parse(
	`<svg xmlns="http://www.w3.org/2000/svg" width="{{ .Width }}" height="{{ .Height }}" font-family="sans-serif">
	<rect width="{{ .Width }}" height="{{ .Height }}" fill="white"/>
	<text x="{{ .CellPx }}" y="30" font-size="16">{{ .Title }}</text>
	{{ range .Cells }}<rect x="{{ .X }}" y="{{ .Y }}" width="{{ $.CellPx }}" height="{{ $.CellPx }}" fill="none" stroke="lightgray"/>
	{{ if .Draw }}<g transform="translate({{ .CX }}, {{ .CY }})"><text font-size="28" dominant-baseline="central" text-anchor="middle" transform="rotate({{ .Rotation }})">&uarr;</text></g>
	{{ end }}{{ end }}</svg>
`))
