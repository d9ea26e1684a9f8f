package root_view

import (
	"context"
	"html/template"
	"strings"
	"testing"
	"time"

	"marl/grid_world"
	"marl/reinforcement"
	"marl/server/fastview"
	"marl/server/grid_views"

	. "github.com/smartystreets/goconvey/convey"
)

func update(id, value string) fastview.EleUpdate {
	return fastview.EleUpdate{EleId: id, Ops: []fastview.Op{{Key: fastview.TextContent, Value: value}}}
}

func testProgress() reinforcement.Progress {
	return reinforcement.Progress{
		Episode: 1,
		Snapshot: grid_world.Snapshot{
			Size:     grid_world.GridSize{Height: 2, Width: 2},
			Agents:   []grid_world.Position{{Row: 0, Col: 0}},
			Goals:    []grid_world.Position{{Row: 1, Col: 1}},
			MaxSteps: 10,
		},
		Returns: []float64{0},
	}
}

func TestBatchify(t *testing.T) {
	Convey("When updates are batched", t, func() {
		done := make(chan struct{})
		defer close(done)
		source := make(chan []fastview.EleUpdate)
		output := batchify(done, source, time.Millisecond*20)

		source <- []fastview.EleUpdate{update("a", "1"), update("b", "1")}
		So(<-output, ShouldResemble, []fastview.EleUpdate{update("a", "1"), update("b", "1")})

		Convey("Updates within the rate coalesce to the latest per element", func() {
			source <- []fastview.EleUpdate{update("a", "2")}
			source <- []fastview.EleUpdate{update("a", "3")}
			So(<-output, ShouldResemble, []fastview.EleUpdate{update("a", "3")})

			Convey("And later updates are flushed without further input", func() {
				source <- []fastview.EleUpdate{update("b", "4")}
				So(<-output, ShouldResemble, []fastview.EleUpdate{update("b", "4")})
			})
		})
	})
}

func TestRootView(t *testing.T) {
	Convey("When the root view is built", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		progress := make(chan reinforcement.Progress)
		rv, err := NewRootView(ctx, progress)
		So(err, ShouldBeNil)

		Convey("The page embeds every view", func() {
			t := template.New("index.html")
			name, err := rv.Parse(t)
			So(err, ShouldBeNil)
			var sb strings.Builder
			So(t.ExecuteTemplate(&sb, name, grid_views.Convert(testProgress())), ShouldBeNil)
			html := sb.String()
			So(html, ShouldContainSubstring, `id="gridview"`)
			So(html, ShouldContainSubstring, `id="status-steps"`)
			So(html, ShouldContainSubstring, "new WebSocket")
		})

		Convey("Progress fans in to element updates", func() {
			go func() { progress <- testProgress() }()
			seen := map[string]bool{}
			timeout := time.After(time.Second)
			for !(seen["agent-0"] && seen["status-steps"]) {
				select {
				case batch := <-rv.Updates():
					for _, u := range batch {
						seen[u.EleId] = true
					}
				case <-timeout:
					So(seen, ShouldContainKey, "agent-0")
					So(seen, ShouldContainKey, "status-steps")
					return
				}
			}
			So(seen["cell-1-1"], ShouldBeTrue)
		})
	})
}
