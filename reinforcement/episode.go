package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"math"

	"marl/grid_world"
	"marl/running_stats"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrAgentCount   error = errors.New("agent count does not match the environment")
	ErrEpisodeCount error = errors.New("episode count must be positive")
)

// Environment is the part of *grid_world.GridWorld the episode loop drives.
type Environment interface {
	Reset() ([]*mat.VecDense, error)
	Step(actions []grid_world.Action) (grid_world.StepResult, error)
	Snapshot() grid_world.Snapshot
}

// Progress is lent to a ProgressFunc after every reset and step.
type Progress struct {
	Episode  int
	Snapshot grid_world.Snapshot
	// Rewards of the last step, nil right after reset.
	Rewards []float64
	// Returns accumulated so far this episode, per agent.
	Returns []float64
	Done    bool
}

// ProgressFunc is a callback by which the episode loop can lend progress details,
// while exercising some level of control over its cancellation to prevent blocking.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, Progress)

// EpisodeResult summarizes one episode.
type EpisodeResult struct {
	// Returns is the undiscounted reward sum per agent.
	Returns   []float64
	Steps     int
	AllAtGoal bool
}

// TeamReturn is the sum of every agent's return.
func (er EpisodeResult) TeamReturn() float64 {
	sum := 0.0
	for _, r := range er.Returns {
		sum += r
	}
	return sum
}

// RunEpisode resets env and steps it until done, agent i acting on observation i.
// The episode number is only passed through to progressFn, which may be nil.
func RunEpisode(
	ctx context.Context,
	env Environment,
	agents []Agent,
	episode int,
	evalMode bool,
	progressFn ProgressFunc,
) (result EpisodeResult, err error) {
	var obs []*mat.VecDense
	if obs, err = env.Reset(); err != nil {
		return
	}
	if len(agents) != len(obs) {
		err = fmt.Errorf("%w: %d agents for %d observations", ErrAgentCount, len(agents), len(obs))
		return
	}

	result.Returns = make([]float64, len(agents))
	notify := func(rewards []float64, done bool) {
		if progressFn == nil {
			return
		}
		progressFn(ctx, Progress{
			Episode:  episode,
			Snapshot: env.Snapshot(),
			Rewards:  rewards,
			Returns:  append([]float64{}, result.Returns...),
			Done:     done,
		})
	}
	notify(nil, false)

	actions := make([]grid_world.Action, len(agents))
	for {
		if err = ctx.Err(); err != nil {
			return
		}

		for i, agent := range agents {
			actions[i] = agent.SelectAction(obs[i], evalMode)
		}

		var sr grid_world.StepResult
		if sr, err = env.Step(actions); err != nil {
			return
		}
		for i, r := range sr.Rewards {
			result.Returns[i] += r
		}
		obs = sr.Observations
		result.Steps = sr.Info.Steps
		result.AllAtGoal = sr.Info.AllAtGoal

		done := len(sr.Dones) > 0 && sr.Dones[0]
		notify(sr.Rewards, done)
		if done {
			return
		}
	}
}

// Evaluation aggregates team returns over a number of eval-mode episodes.
type Evaluation struct {
	// TeamReturns is the team return of each episode, in order.
	TeamReturns []float64
	// AgentReturns holds one return series per agent.
	AgentReturns [][]float64
	// Mean and Std are the population moments of TeamReturns.
	Mean float64
	Std  float64
	// Successes counts episodes that ended with every agent on its goal.
	Successes int
	// Stats accumulated the team returns one episode at a time.
	Stats *running_stats.RunningMeanStd
}

// SuccessRate is the fraction of episodes ending with all agents at their goals.
func (ev *Evaluation) SuccessRate() float64 {
	if len(ev.TeamReturns) == 0 {
		return 0
	}
	return float64(ev.Successes) / float64(len(ev.TeamReturns))
}

// EvaluateAgents runs nEpisodes eval-mode episodes and reports the mean and
// population std of the team returns.
func EvaluateAgents(
	ctx context.Context,
	env Environment,
	agents []Agent,
	nEpisodes int,
	progressFn ProgressFunc,
) (*Evaluation, error) {
	if nEpisodes < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrEpisodeCount, nEpisodes)
	}

	ev := &Evaluation{
		TeamReturns:  make([]float64, 0, nEpisodes),
		AgentReturns: make([][]float64, len(agents)),
		Stats:        running_stats.New(running_stats.DefaultEpsilon, 1),
	}
	for ep := 0; ep < nEpisodes; ep++ {
		result, err := RunEpisode(ctx, env, agents, ep, true, progressFn)
		if err != nil {
			return nil, fmt.Errorf("episode %d: %w", ep, err)
		}

		team := result.TeamReturn()
		ev.TeamReturns = append(ev.TeamReturns, team)
		for i, r := range result.Returns {
			ev.AgentReturns[i] = append(ev.AgentReturns[i], r)
		}
		if result.AllAtGoal {
			ev.Successes++
		}
		if err = ev.Stats.UpdateScalars([]float64{team}); err != nil {
			return nil, err
		}
	}

	var variance float64
	ev.Mean, variance = stat.PopMeanVariance(ev.TeamReturns, nil)
	ev.Std = math.Sqrt(variance)
	return ev, nil
}
