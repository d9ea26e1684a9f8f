package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"marl/atomic_float"
	"marl/grid_world"
	"marl/reinforcement"
	"marl/render"
	"marl/server/fastview"
	"marl/server/grid_views"
	"marl/server/root_view"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownGracePeriod = 5 * time.Second
	maxCellPx           = 200
)

// Server serves a single page of live episode views, to a single client, over
// a single websocket. Episode progress is pushed in through Observe, which
// satisfies reinforcement.ProgressFunc.
type Server struct {
	addr     string
	router   *mux.Router
	rootView *root_view.RootView
	progress chan reinforcement.Progress

	mu     sync.RWMutex
	latest reinforcement.Progress

	episodes   *atomic_float.AtomicFloat64
	returnSum  *atomic_float.AtomicFloat64
	lastReturn *atomic_float.AtomicFloat64
}

// Stats is the body of the /stats endpoint.
type Stats struct {
	Episodes   int     `json:"episodes"`
	MeanReturn float64 `json:"meanReturn"`
	LastReturn float64 `json:"lastReturn"`
}

// NewServer builds the views and routes. initial is shown until the first
// progress report arrives.
func NewServer(
	ctx context.Context,
	addr string,
	initial grid_world.Snapshot,
) (*Server, error) {
	progress := make(chan reinforcement.Progress)
	rootView, err := root_view.NewRootView(ctx, progress)
	if err != nil {
		return nil, err
	}

	server := &Server{
		addr:       addr,
		rootView:   rootView,
		progress:   progress,
		latest:     reinforcement.Progress{Snapshot: initial},
		episodes:   atomic_float.NewAtomicFloat64(0),
		returnSum:  atomic_float.NewAtomicFloat64(0),
		lastReturn: atomic_float.NewAtomicFloat64(0),
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.HandleFunc("/frame.png", server.serveFrame).Methods(http.MethodGet)
	router.HandleFunc("/stats", server.serveStats).Methods(http.MethodGet)
	server.router = router

	return server, nil
}

// Handler exposes the routes, e.g. for httptest.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Observe records a progress report and forwards it to the views. Reports are
// dropped when the views are still busy with an earlier one, so the episode
// loop is never held up by a slow or absent client.
func (server *Server) Observe(ctx context.Context, p reinforcement.Progress) {
	server.mu.Lock()
	server.latest = p
	server.mu.Unlock()

	if p.Done {
		team := reinforcement.EpisodeResult{Returns: p.Returns}.TeamReturn()
		server.episodes.Add(1)
		server.returnSum.Add(team)
		server.lastReturn.Store(team)
	}

	select {
	case server.progress <- p:
	case <-ctx.Done():
	default:
	}
}

// Latest returns the most recent progress report.
func (server *Server) Latest() reinforcement.Progress {
	server.mu.RLock()
	defer server.mu.RUnlock()
	return server.latest
}

// Stats reads the episode counters.
func (server *Server) Stats() Stats {
	stats := Stats{
		Episodes:   int(server.episodes.Load()),
		LastReturn: server.lastReturn.Load(),
	}
	if stats.Episodes > 0 {
		stats.MeanReturn = server.returnSum.Load() / float64(stats.Episodes)
	}
	return stats
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) (err error) {
	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("serving on %s", server.addr)
		if serveErr := httpServer.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err = group.Wait(); err != nil {
		err = fmt.Errorf("serve: %w", err)
	}
	return
}

// serveWebsocket publishes view updates to the client via websocket.
// The update chan has a single consumer, so a second page steals updates from the first.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.rootView.Updates(), w, r)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}

	if err = cli.Sync(); err != nil {
		log.Println("sync:", err)
	}
}

// Serve the index.html main page, rendered from the latest frame.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	frame := grid_views.Convert(server.Latest())
	if err := renderTemplate(w, server.rootView, frame); err != nil {
		_, _ = w.Write([]byte(err.Error()))
	}
}

// serveFrame writes the latest snapshot as a png. The optional px query
// parameter sets the cell size.
func (server *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	cellPx := render.DefaultCellPx
	if px := r.URL.Query().Get("px"); px != "" {
		n, err := strconv.Atoi(px)
		if err != nil || n < 1 || n > maxCellPx {
			http.Error(w, fmt.Sprintf("px must be an integer in [1, %d]", maxCellPx), http.StatusBadRequest)
			return
		}
		cellPx = n
	}

	w.Header().Set("Content-Type", "image/png")
	if err := render.PNG(w, server.Latest().Snapshot, cellPx); err != nil {
		log.Println("frame:", err)
	}
}

func (server *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.Stats()); err != nil {
		log.Println("stats:", err)
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
