package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"

	"marl/grid_world"
	"marl/plotting"
	"marl/render"
	"marl/results"
	"marl/running_stats"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

// requiredModules are the third-party modules a working build links in.
var requiredModules = []string{
	"gonum.org/v1/gonum",
	"gopkg.in/yaml.v3",
	"github.com/spf13/viper",
	"github.com/spf13/cobra",
	"github.com/joho/godotenv",
	"github.com/google/uuid",
	"github.com/gorilla/mux",
	"github.com/gorilla/websocket",
	"github.com/niceyeti/channerics",
	"golang.org/x/sync",
}

// check is one named self-test.
type check struct {
	name string
	run  func() error
}

var errCheckFailed error = errors.New("setup check failed")

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Checking modules...")
	versions := moduleVersions()
	missing := 0
	for _, path := range requiredModules {
		if version, ok := versions[path]; ok {
			fmt.Fprintf(out, "✓ %s %s\n", path, version)
		} else {
			fmt.Fprintf(out, "✗ %s not linked\n", path)
			missing++
		}
	}

	fmt.Fprintln(out, "\nChecking functionality...")
	passed, failed := runChecks(out, basicChecks())
	fmt.Fprintf(out, "\nPassed %d/%d checks\n", passed, passed+failed)

	// Module info is absent from binaries built without module support, so
	// missing modules alone are only reported.
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errCheckFailed, failed, passed+failed)
	}
	if missing > 0 {
		fmt.Fprintf(out, "%d modules missing from build info\n", missing)
	}
	return nil
}

// moduleVersions maps module path to version from the binary's build info.
func moduleVersions() map[string]string {
	versions := map[string]string{}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return versions
	}
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		versions[dep.Path] = dep.Version
	}
	return versions
}

// runChecks runs every check, recovering panics as failures.
func runChecks(w io.Writer, checks []check) (passed, failed int) {
	for _, c := range checks {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return c.run()
		}()
		if err != nil {
			fmt.Fprintf(w, "✗ %s: %v\n", c.name, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "✓ %s\n", c.name)
		passed++
	}
	return
}

func basicChecks() []check {
	return []check{
		{name: "gridworld reset and step", run: checkGridWorld},
		{name: "running statistics", run: checkRunningStats},
		{name: "results round trip", run: checkResults},
		{name: "rendering", run: checkRendering},
	}
}

func checkGridWorld() error {
	gw, err := grid_world.New(grid_world.DefaultConfig())
	if err != nil {
		return err
	}
	obs, err := gw.Reset()
	if err != nil {
		return err
	}
	if len(obs) != gw.NumAgents() || obs[0].Len() != 2*gw.NumAgents() {
		return fmt.Errorf("observation shape %dx%d", len(obs), obs[0].Len())
	}
	sr, err := gw.Step([]grid_world.Action{grid_world.Stay, grid_world.Stay})
	if err != nil {
		return err
	}
	if sr.Info.Steps != 1 || len(sr.Rewards) != gw.NumAgents() {
		return fmt.Errorf("unexpected step result %+v", sr.Info)
	}
	return nil
}

func checkRunningStats() error {
	rms := running_stats.New(running_stats.DefaultEpsilon, 1)
	if err := rms.UpdateScalars([]float64{1, 2, 3, 4, 5, 6}); err != nil {
		return err
	}
	if math.Abs(rms.Mean().AtVec(0)-3.5) > 1e-3 {
		return fmt.Errorf("mean %v, want 3.5", rms.Mean().AtVec(0))
	}
	return nil
}

func checkResults() error {
	dir, err := os.MkdirTemp("", "marl-check")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "results.yaml")
	if err = results.Save(path, map[string]any{"mean": mat.NewVecDense(2, []float64{0.5, 1.5})}); err != nil {
		return err
	}
	loaded, err := results.Load(path)
	if err != nil {
		return err
	}
	if mean, ok := loaded["mean"].([]any); !ok || len(mean) != 2 {
		return fmt.Errorf("mean read back as %v", loaded["mean"])
	}
	return nil
}

func checkRendering() error {
	gw, err := grid_world.New(grid_world.DefaultConfig())
	if err != nil {
		return err
	}
	if _, err = gw.Reset(); err != nil {
		return err
	}
	render.Console(io.Discard, gw.Snapshot())
	if err = render.PNG(io.Discard, gw.Snapshot(), render.DefaultCellPx); err != nil {
		return err
	}
	return plotting.LearningCurve(io.Discard, []float64{1, 2, 3, 4}, plotting.CurveOptions{Window: 2})
}
