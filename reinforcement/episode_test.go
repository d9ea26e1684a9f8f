package reinforcement

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"marl/grid_world"
	"marl/seeding"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

// placedWorld resets to fixed positions so episodes are predictable.
type placedWorld struct {
	*grid_world.GridWorld
	agents, goals []grid_world.Position
}

func (pw *placedWorld) Reset() ([]*mat.VecDense, error) {
	return pw.Place(pw.agents, pw.goals)
}

func newPlacedWorld() *placedWorld {
	gw, err := grid_world.New(grid_world.DefaultConfig())
	So(err, ShouldBeNil)
	return &placedWorld{
		GridWorld: gw,
		agents:    []grid_world.Position{{Row: 0, Col: 0}, {Row: 4, Col: 4}},
		goals:     []grid_world.Position{{Row: 0, Col: 2}, {Row: 4, Col: 2}},
	}
}

func TestRunEpisode(t *testing.T) {
	Convey("When an episode is run", t, func() {
		ctx := context.Background()
		env := newPlacedWorld()
		agents := NewTeam(2, env, 0)

		Convey("Greedy agents walk straight to their goals", func() {
			var updates []Progress
			result, err := RunEpisode(ctx, env, agents, 3, true, func(_ context.Context, p Progress) {
				updates = append(updates, p)
			})
			So(err, ShouldBeNil)
			So(result.Steps, ShouldEqual, 2)
			So(result.AllAtGoal, ShouldBeTrue)
			So(result.Returns[0], ShouldAlmostEqual, 9.8)
			So(result.Returns[1], ShouldAlmostEqual, 9.8)
			So(result.TeamReturn(), ShouldAlmostEqual, 19.6)

			So(len(updates), ShouldEqual, 3)
			So(updates[0].Rewards, ShouldBeNil)
			So(updates[0].Episode, ShouldEqual, 3)
			So(updates[0].Snapshot.Agents, ShouldResemble, env.agents)
			So(updates[1].Returns[0], ShouldAlmostEqual, -0.1)
			So(updates[2].Done, ShouldBeTrue)
			So(updates[2].Snapshot.Agents, ShouldResemble, env.goals)
		})

		Convey("A cancelled context stops the episode", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := RunEpisode(cctx, env, agents, 0, true, nil)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("The agent count must match the environment", func() {
			_, err := RunEpisode(ctx, env, agents[:1], 0, true, nil)
			So(errors.Is(err, ErrAgentCount), ShouldBeTrue)
		})

		Convey("Random agents replay identically under the same seed", func() {
			cfg := grid_world.DefaultConfig()
			cfg.MaxSteps = 10
			gw, err := grid_world.New(cfg)
			So(err, ShouldBeNil)
			team := NewTeam(2, gw, 1)

			seeding.SetSeed(11)
			first, err := RunEpisode(ctx, gw, team, 0, false, nil)
			So(err, ShouldBeNil)
			seeding.SetSeed(11)
			second, err := RunEpisode(ctx, gw, team, 0, false, nil)
			So(err, ShouldBeNil)

			So(first.Steps, ShouldBeLessThanOrEqualTo, 10)
			So(second, ShouldResemble, first)
		})
	})
}

func TestGreedyAgent(t *testing.T) {
	Convey("When a greedy agent acts", t, func() {
		env := newPlacedWorld()
		obs, err := env.Reset()
		So(err, ShouldBeNil)

		Convey("It closes the column gap toward its goal", func() {
			So(NewGreedyAgent(0, env, 0).SelectAction(obs[0], true), ShouldEqual, grid_world.Right)
			So(NewGreedyAgent(1, env, 0).SelectAction(obs[1], true), ShouldEqual, grid_world.Left)
		})

		Convey("It closes the row gap first", func() {
			env.goals[0] = grid_world.Position{Row: 3, Col: 3}
			obs, err = env.Reset()
			So(err, ShouldBeNil)
			So(NewGreedyAgent(0, env, 0).SelectAction(obs[0], true), ShouldEqual, grid_world.Down)
		})

		Convey("Eval mode ignores exploration", func() {
			So(NewGreedyAgent(0, env, 1).SelectAction(obs[0], true), ShouldEqual, grid_world.Right)
		})

		Convey("Exploration still yields a valid action", func() {
			for i := 0; i < 20; i++ {
				So(NewGreedyAgent(0, env, 1).SelectAction(obs[0], false).Valid(), ShouldBeTrue)
			}
		})

		Convey("Its policy points every cell toward the goal", func() {
			policy := NewGreedyAgent(0, env, 0).Policy(grid_world.GridSize{Height: 2, Width: 4}, 2)
			So(policy, ShouldResemble, [][]int{
				{int(grid_world.Right), int(grid_world.Right), int(grid_world.Stay), int(grid_world.Left)},
				{int(grid_world.Up), int(grid_world.Up), int(grid_world.Up), int(grid_world.Up)},
			})
		})

		Convey("An unknown id stays put", func() {
			So(NewGreedyAgent(5, env, 0).SelectAction(obs[0], true), ShouldEqual, grid_world.Stay)
		})
	})
}

func TestEvaluateAgents(t *testing.T) {
	Convey("When agents are evaluated", t, func() {
		ctx := context.Background()
		env := newPlacedWorld()
		agents := NewTeam(2, env, 0.5)

		Convey("Identical episodes have zero spread", func() {
			ev, err := EvaluateAgents(ctx, env, agents, 4, nil)
			So(err, ShouldBeNil)
			So(len(ev.TeamReturns), ShouldEqual, 4)
			So(len(ev.AgentReturns), ShouldEqual, 2)
			So(len(ev.AgentReturns[1]), ShouldEqual, 4)
			So(ev.Mean, ShouldAlmostEqual, 19.6)
			So(ev.Std, ShouldAlmostEqual, 0)
			So(ev.Successes, ShouldEqual, 4)
			So(ev.SuccessRate(), ShouldEqual, 1.0)
			So(ev.Stats.Count(), ShouldAlmostEqual, 4.0001)
		})

		Convey("The episode count must be positive", func() {
			_, err := EvaluateAgents(ctx, env, agents, 0, nil)
			So(errors.Is(err, ErrEpisodeCount), ShouldBeTrue)
		})
	})
}

func TestPrintHyperparameters(t *testing.T) {
	Convey("When hyperparameters are printed", t, func() {
		var buf bytes.Buffer
		PrintHyperparameters(&buf, map[string]any{"gamma": 0.99, "alpha": 1})
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

		So(len(lines), ShouldEqual, 6)
		So(lines[0], ShouldEqual, strings.Repeat("=", 50))
		So(lines[1], ShouldEqual, "Hyperparameters:")
		So(lines[3], ShouldEqual, "alpha"+strings.Repeat(".", 25)+" 1")
		So(lines[4], ShouldEqual, "gamma"+strings.Repeat(".", 25)+" 0.99")
		So(lines[5], ShouldEqual, lines[0])
	})
}
