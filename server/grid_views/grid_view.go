package grid_views

import (
	"fmt"
	"html/template"

	"marl/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// GridView is an svg of the grid: cells, goal squares, and agent discs.
// Element ids are fixed per cell and per agent, so frames only move them.
type GridView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewGridView(
	done <-chan struct{},
	frames <-chan Frame,
) *GridView {
	gv := &GridView{id: "gridview"}
	gv.updates = channerics.Convert(done, frames, gv.onUpdate)
	return gv
}

func (gv *GridView) Updates() <-chan []fastview.EleUpdate {
	return gv.updates
}

// onUpdate returns the set of view updates needed to reflect the frame.
func (gv *GridView) onUpdate(frame Frame) (ops []fastview.EleUpdate) {
	for _, row := range frame.Cells {
		for _, cell := range row {
			ops = append(ops, fastview.EleUpdate{
				EleId: fmt.Sprintf("cell-%d-%d", cell.Row, cell.Col),
				Ops:   []fastview.Op{{Key: "fill", Value: cell.Fill}},
			})
		}
	}

	for _, goal := range frame.Goals {
		ops = append(ops, fastview.EleUpdate{
			EleId: fmt.Sprintf("goal-%d", goal.ID),
			Ops: []fastview.Op{
				{Key: "x", Value: fmt.Sprint(goal.X)},
				{Key: "y", Value: fmt.Sprint(goal.Y)},
			},
		})
	}

	for _, agent := range frame.Agents {
		ops = append(ops,
			fastview.EleUpdate{
				EleId: fmt.Sprintf("agent-%d", agent.ID),
				Ops: []fastview.Op{
					{Key: "cx", Value: fmt.Sprint(agent.CX)},
					{Key: "cy", Value: fmt.Sprint(agent.CY)},
				},
			},
			fastview.EleUpdate{
				EleId: fmt.Sprintf("agent-%d-label", agent.ID),
				Ops: []fastview.Op{
					{Key: "x", Value: fmt.Sprint(agent.CX)},
					{Key: "y", Value: fmt.Sprint(agent.CY)},
				},
			})
	}
	return
}

// Parse defines the grid svg in the parent template. Its data is a Frame.
func (gv *GridView) Parse(
	t *template.Template,
) (name string, err error) {
	name = gv.id
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<div style="padding:20px;">
			<svg id="` + gv.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ add (mult .Cols .CellDim) 1 }}px"
				height="{{ add (mult .Rows .CellDim) 1 }}px"
				style="shape-rendering: crispEdges;">
				{{ range $row := .Cells }}
					{{ range $cell := $row }}
					<rect id="cell-{{ $cell.Row }}-{{ $cell.Col }}"
						x="{{ $cell.X }}" y="{{ $cell.Y }}"
						width="{{ $.CellDim }}" height="{{ $.CellDim }}"
						fill="{{ $cell.Fill }}" stroke="black" stroke-width="1"/>
					{{ end }}
				{{ end }}
				{{ range $goal := .Goals }}
				<rect id="goal-{{ $goal.ID }}"
					x="{{ $goal.X }}" y="{{ $goal.Y }}"
					width="{{ $goal.Size }}" height="{{ $goal.Size }}"
					fill="{{ $goal.Fill }}" fill-opacity="0.3"/>
				{{ end }}
				{{ range $agent := .Agents }}
				<circle id="agent-{{ $agent.ID }}"
					cx="{{ $agent.CX }}" cy="{{ $agent.CY }}" r="{{ $agent.Size }}"
					fill="{{ $agent.Fill }}"/>
				<text id="agent-{{ $agent.ID }}-label"
					x="{{ $agent.CX }}" y="{{ $agent.CY }}"
					fill="white" dominant-baseline="central" text-anchor="middle"
					>{{ $agent.ID }}</text>
				{{ end }}
			</svg>
		</div>
		{{ end }}`)
	return
}
