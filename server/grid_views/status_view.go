package grid_views

import (
	"html/template"

	"marl/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// StatusView shows the episode and step counters, returns, and goal status as text.
type StatusView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewStatusView(
	done <-chan struct{},
	frames <-chan Frame,
) *StatusView {
	sv := &StatusView{id: "statusview"}
	sv.updates = channerics.Convert(done, frames, sv.onUpdate)
	return sv
}

func (sv *StatusView) Updates() <-chan []fastview.EleUpdate {
	return sv.updates
}

func (sv *StatusView) onUpdate(frame Frame) []fastview.EleUpdate {
	text := func(id, value string) fastview.EleUpdate {
		return fastview.EleUpdate{
			EleId: id,
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: value}},
		}
	}
	return []fastview.EleUpdate{
		text("status-episode", frame.EpisodeText()),
		text("status-steps", frame.StepText()),
		text("status-returns", frame.ReturnsText()),
		text("status-goal", frame.GoalText()),
	}
}

func (sv *StatusView) Parse(
	t *template.Template,
) (name string, err error) {
	name = sv.id
	_, err = t.Parse(
		`{{ define "` + name + `" }}
		<div id="` + sv.id + `" style="padding:20px; font-family:monospace;">
			<div id="status-episode">{{ .EpisodeText }}</div>
			<div id="status-steps">{{ .StepText }}</div>
			<div id="status-returns">{{ .ReturnsText }}</div>
			<div id="status-goal">{{ .GoalText }}</div>
		</div>
		{{ end }}`)
	return
}
