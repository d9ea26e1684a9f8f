package fastview

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	. "github.com/smartystreets/goconvey/convey"
)

// textView sets the text of a single element to each incoming view-model.
type textView struct {
	id      string
	updates <-chan []EleUpdate
}

func newTextView(id string) ViewBuilderFunc[string] {
	return func(done <-chan struct{}, texts <-chan string) ViewComponent {
		return &textView{
			id: id,
			updates: channerics.Convert(done, texts, func(text string) []EleUpdate {
				return []EleUpdate{{EleId: id, Ops: []Op{{Key: TextContent, Value: text}}}}
			}),
		}
	}
}

func (tv *textView) Updates() <-chan []EleUpdate {
	return tv.updates
}

func (tv *textView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + tv.id + `" }}<span id="` + tv.id + `">{{ . }}</span>{{ end }}`)
	return tv.id, err
}

func TestViewBuilder(t *testing.T) {
	Convey("When views are built", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		source := make(chan int)

		Convey("Each view receives every converted item", func() {
			views, err := NewViewBuilder[int, string]().
				WithContext(ctx).
				WithModel(source, strconv.Itoa).
				WithView(newTextView("first")).
				WithView(newTextView("second")).
				Build()
			So(err, ShouldBeNil)
			So(len(views), ShouldEqual, 2)

			go func() { source <- 7 }()
			first := <-views[0].Updates()
			second := <-views[1].Updates()
			So(first[0].EleId, ShouldEqual, "first")
			So(first[0].Ops[0].Value, ShouldEqual, "7")
			So(second[0].EleId, ShouldEqual, "second")
			So(second[0].Ops[0].Value, ShouldEqual, "7")

			Convey("And each view parses into a parent template", func() {
				parent := template.New("root")
				name, err := views[0].Parse(parent)
				So(err, ShouldBeNil)
				So(name, ShouldEqual, "first")
				var sb strings.Builder
				So(parent.ExecuteTemplate(&sb, name, "x"), ShouldBeNil)
				So(sb.String(), ShouldEqual, `<span id="first">x</span>`)
			})
		})

		Convey("Building without views fails", func() {
			_, err := NewViewBuilder[int, string]().WithModel(source, strconv.Itoa).Build()
			So(err, ShouldEqual, ErrNoViews)
		})

		Convey("Building without a model fails", func() {
			_, err := NewViewBuilder[int, string]().WithView(newTextView("x")).Build()
			So(err, ShouldEqual, ErrNoModel)
		})
	})
}

func TestClient(t *testing.T) {
	Convey("When a websocket client syncs updates", t, func() {
		updates := make(chan []EleUpdate)
		syncErrs := make(chan error, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cli, err := NewClient(updates, w, r)
			if err != nil {
				syncErrs <- err
				return
			}
			syncErrs <- cli.Sync()
		}))
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		text := func(i int) []EleUpdate {
			return []EleUpdate{{EleId: "steps", Ops: []Op{{Key: TextContent, Value: strconv.Itoa(i)}}}}
		}

		Convey("The first update is published immediately", func() {
			updates <- text(1)
			var got []EleUpdate
			So(conn.ReadJSON(&got), ShouldBeNil)
			So(got, ShouldResemble, text(1))
		})

		Convey("A burst still delivers its latest update", func() {
			for i := 1; i <= 3; i++ {
				updates <- text(i)
			}
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			last := ""
			for last != "3" {
				var got []EleUpdate
				if err := conn.ReadJSON(&got); err != nil {
					break
				}
				last = got[0].Ops[0].Value
			}
			So(last, ShouldEqual, "3")
		})

		Convey("Closing the updates chan ends the session cleanly", func() {
			close(updates)
			select {
			case err := <-syncErrs:
				So(err, ShouldBeNil)
			case <-time.After(2 * time.Second):
				So("sync did not return", ShouldBeEmpty)
			}
		})
	})
}
