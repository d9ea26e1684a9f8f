// grid_world implements a small multi-agent gridworld: each agent walks a
// bounded grid toward its own goal, obstacles block movement, and agents that
// propose the same cell collide and stay put. Every agent observes the full
// state, the (row, col) of every agent in id order.
package grid_world

import (
	"fmt"
	"sort"

	"marl/seeding"

	"gonum.org/v1/gonum/mat"
)

// Position is a (row, col) grid cell. Row 0 is the top row.
type Position struct {
	Row int `yaml:"row" json:"row"`
	Col int `yaml:"col" json:"col"`
}

// GridSize is the fixed extent of the grid.
type GridSize struct {
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
}

// Contains reports whether p lies within the grid bounds.
func (gs GridSize) Contains(p Position) bool {
	return p.Row >= 0 && p.Row < gs.Height && p.Col >= 0 && p.Col < gs.Width
}

// Cells is the number of grid cells.
func (gs GridSize) Cells() int {
	return gs.Height * gs.Width
}

const (
	DefaultHeight          = 5
	DefaultWidth           = 5
	DefaultNumAgents       = 2
	DefaultMaxSteps        = 50
	DefaultRewardGoal      = 10.0
	DefaultRewardStep      = -0.1
	DefaultRewardCollision = -1.0
)

// Rejection sampling gives up after this many draws per grid cell, per placement.
var placementAttemptsPerCell = 64

// Config holds the construction-time parameters of a GridWorld.
// Yaml keys are lowercase since viper folds the case of every key it reads.
type Config struct {
	Height          int     `yaml:"height"`
	Width           int     `yaml:"width"`
	NumAgents       int     `yaml:"numagents"`
	MaxSteps        int     `yaml:"maxsteps"`
	RewardGoal      float64 `yaml:"rewardgoal"`
	RewardStep      float64 `yaml:"rewardstep"`
	RewardCollision float64 `yaml:"rewardcollision"`
}

// DefaultConfig returns the tutorial defaults: a 5x5 grid, two agents, 50 steps.
func DefaultConfig() Config {
	return Config{
		Height:          DefaultHeight,
		Width:           DefaultWidth,
		NumAgents:       DefaultNumAgents,
		MaxSteps:        DefaultMaxSteps,
		RewardGoal:      DefaultRewardGoal,
		RewardStep:      DefaultRewardStep,
		RewardCollision: DefaultRewardCollision,
	}
}

// GridWorld is the environment. It is not safe for concurrent use.
type GridWorld struct {
	size            GridSize
	numAgents       int
	maxSteps        int
	rewardGoal      float64
	rewardStep      float64
	rewardCollision float64

	agents    []Position // indexed by agent id; nil until Reset or Place
	goals     []Position // indexed by agent id
	obstacles map[Position]struct{}
	steps     int
}

// Info is the auxiliary step output.
type Info struct {
	Steps     int
	AllAtGoal bool
}

// StepResult is everything returned by Step, indexed by agent id.
type StepResult struct {
	Observations []*mat.VecDense
	Rewards      []float64
	Dones        []bool
	Info         Info
}

// New validates the config and returns an environment with no obstacles.
// Reset must be called before Step.
func New(cfg Config) (*GridWorld, error) {
	if cfg.Height < 1 || cfg.Width < 1 {
		return nil, fmt.Errorf("%w: grid size (%d,%d) must be at least (1,1)", ErrConfiguration, cfg.Height, cfg.Width)
	}
	if cfg.NumAgents < 1 {
		return nil, fmt.Errorf("%w: need at least one agent, got %d", ErrConfiguration, cfg.NumAgents)
	}
	if cfg.MaxSteps < 1 {
		return nil, fmt.Errorf("%w: max steps must be positive, got %d", ErrConfiguration, cfg.MaxSteps)
	}

	return &GridWorld{
		size:            GridSize{Height: cfg.Height, Width: cfg.Width},
		numAgents:       cfg.NumAgents,
		maxSteps:        cfg.MaxSteps,
		rewardGoal:      cfg.RewardGoal,
		rewardStep:      cfg.RewardStep,
		rewardCollision: cfg.RewardCollision,
		obstacles:       map[Position]struct{}{},
	}, nil
}

// AddObstacles replaces the obstacle set. Current agent and goal placements are
// not checked against it; call it before Reset.
func (gw *GridWorld) AddObstacles(obstacles []Position) {
	gw.obstacles = make(map[Position]struct{}, len(obstacles))
	for _, p := range obstacles {
		gw.obstacles[p] = struct{}{}
	}
}

func (gw *GridWorld) isObstacle(p Position) bool {
	_, ok := gw.obstacles[p]
	return ok
}

// Reset places agents and then goals uniformly at random on free cells, zeroes
// the step counter, and returns the initial observations. Draws come from the
// shared seeding generator, in ascending agent id order.
func (gw *GridWorld) Reset() ([]*mat.VecDense, error) {
	free := gw.size.Cells()
	for p := range gw.obstacles {
		if gw.size.Contains(p) {
			free--
		}
	}
	if free < 2*gw.numAgents {
		return nil, fmt.Errorf(
			"%w: %d free cells cannot hold %d agents and %d goals",
			ErrConfiguration, free, gw.numAgents, gw.numAgents)
	}

	agents := make([]Position, 0, gw.numAgents)
	taken := map[Position]struct{}{}
	for i := 0; i < gw.numAgents; i++ {
		pos, err := gw.sampleFree(taken)
		if err != nil {
			return nil, fmt.Errorf("placing agent %d: %w", i, err)
		}
		agents = append(agents, pos)
		taken[pos] = struct{}{}
	}

	// Goals avoid every agent position and each other; taken already holds the agents.
	goals := make([]Position, 0, gw.numAgents)
	for i := 0; i < gw.numAgents; i++ {
		pos, err := gw.sampleFree(taken)
		if err != nil {
			return nil, fmt.Errorf("placing goal %d: %w", i, err)
		}
		goals = append(goals, pos)
		taken[pos] = struct{}{}
	}

	gw.agents = agents
	gw.goals = goals
	gw.steps = 0
	return gw.observations(), nil
}

// sampleFree draws uniform cells until one is neither an obstacle nor in taken.
func (gw *GridWorld) sampleFree(taken map[Position]struct{}) (Position, error) {
	attempts := placementAttemptsPerCell * gw.size.Cells()
	for i := 0; i < attempts; i++ {
		pos := Position{
			Row: seeding.Intn(gw.size.Height),
			Col: seeding.Intn(gw.size.Width),
		}
		if _, ok := taken[pos]; ok {
			continue
		}
		if gw.isObstacle(pos) {
			continue
		}
		return pos, nil
	}
	return Position{}, fmt.Errorf("%w: no free cell after %d draws", ErrConfiguration, attempts)
}

// Place sets agent and goal positions explicitly, bypassing random placement,
// and zeroes the step counter. Positions must be in bounds, off obstacles, and
// pairwise distinct across agents and goals.
func (gw *GridWorld) Place(agents, goals []Position) ([]*mat.VecDense, error) {
	if len(agents) != gw.numAgents || len(goals) != gw.numAgents {
		return nil, fmt.Errorf(
			"%w: need %d agent and goal positions, got %d and %d",
			ErrInvalidInput, gw.numAgents, len(agents), len(goals))
	}

	seen := map[Position]struct{}{}
	for _, p := range append(append([]Position{}, agents...), goals...) {
		if !gw.size.Contains(p) {
			return nil, fmt.Errorf("%w: position %v out of bounds", ErrInvalidInput, p)
		}
		if gw.isObstacle(p) {
			return nil, fmt.Errorf("%w: position %v is an obstacle", ErrInvalidInput, p)
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: position %v used twice", ErrInvalidInput, p)
		}
		seen[p] = struct{}{}
	}

	gw.agents = append([]Position{}, agents...)
	gw.goals = append([]Position{}, goals...)
	gw.steps = 0
	return gw.observations(), nil
}

// Step advances the world one tick given one action per agent, indexed by id.
//
// Each agent proposes a clamped move, reverting to its current cell if the move
// lands on an obstacle. Every agent earns the step reward, plus the goal reward if
// its proposal is its own goal. An agent whose proposal equals another agent's
// proposal earns the collision reward and does not move; otherwise it moves to its
// proposal. The goal and collision rewards are independent and may both apply.
// All agents share one done flag: every agent on its goal, or the step limit reached.
func (gw *GridWorld) Step(actions []Action) (StepResult, error) {
	if gw.agents == nil {
		return StepResult{}, fmt.Errorf("%w: step called before reset", ErrInvalidInput)
	}
	if len(actions) != gw.numAgents {
		return StepResult{}, fmt.Errorf("%w: expected %d actions, got %d", ErrInvalidInput, gw.numAgents, len(actions))
	}
	for id, a := range actions {
		if !a.Valid() {
			return StepResult{}, fmt.Errorf("%w: agent %d: %v", ErrInvalidInput, id, a)
		}
	}

	gw.steps++

	proposed := make([]Position, gw.numAgents)
	for id, a := range actions {
		proposed[id] = gw.propose(gw.agents[id], a)
	}

	rewards := make([]float64, gw.numAgents)
	for id := range rewards {
		rewards[id] = gw.rewardStep
	}

	for id := 0; id < gw.numAgents; id++ {
		if proposed[id] == gw.goals[id] {
			rewards[id] += gw.rewardGoal
		}

		collision := false
		for other := 0; other < gw.numAgents; other++ {
			if other != id && proposed[id] == proposed[other] {
				collision = true
				break
			}
		}

		if collision {
			rewards[id] += gw.rewardCollision
		} else {
			gw.agents[id] = proposed[id]
		}
	}

	allAtGoal := gw.AllAtGoal()
	done := allAtGoal || gw.steps >= gw.maxSteps
	dones := make([]bool, gw.numAgents)
	for id := range dones {
		dones[id] = done
	}

	return StepResult{
		Observations: gw.observations(),
		Rewards:      rewards,
		Dones:        dones,
		Info: Info{
			Steps:     gw.steps,
			AllAtGoal: allAtGoal,
		},
	}, nil
}

// propose applies the action's delta clamped to the grid; an obstacle cell
// reverts the proposal to from.
func (gw *GridWorld) propose(from Position, a Action) Position {
	dRow, dCol := a.delta()
	to := Position{
		Row: clamp(from.Row+dRow, 0, gw.size.Height-1),
		Col: clamp(from.Col+dCol, 0, gw.size.Width-1),
	}
	if gw.isObstacle(to) {
		return from
	}
	return to
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AllAtGoal reports whether every agent currently stands on its own goal.
// It is false before the first Reset.
func (gw *GridWorld) AllAtGoal() bool {
	if gw.agents == nil {
		return false
	}
	for id := range gw.agents {
		if gw.agents[id] != gw.goals[id] {
			return false
		}
	}
	return true
}

// observations returns the global state vector, one independent copy per agent.
func (gw *GridWorld) observations() []*mat.VecDense {
	state := mat.NewVecDense(gw.ObservationDim(), nil)
	for id, p := range gw.agents {
		state.SetVec(2*id, float64(p.Row))
		state.SetVec(2*id+1, float64(p.Col))
	}

	obs := make([]*mat.VecDense, gw.numAgents)
	for id := range obs {
		obs[id] = mat.VecDenseCopyOf(state)
	}
	return obs
}

// ObservationDim is the length of every observation, two per agent.
func (gw *GridWorld) ObservationDim() int {
	return 2 * gw.numAgents
}

func (gw *GridWorld) GridSize() GridSize { return gw.size }
func (gw *GridWorld) NumAgents() int     { return gw.numAgents }
func (gw *GridWorld) Steps() int         { return gw.steps }
func (gw *GridWorld) MaxSteps() int      { return gw.maxSteps }

// AgentPositions returns a copy of the current agent positions, indexed by id.
func (gw *GridWorld) AgentPositions() []Position {
	return append([]Position(nil), gw.agents...)
}

// GoalPositions returns a copy of the goal positions, indexed by id.
func (gw *GridWorld) GoalPositions() []Position {
	return append([]Position(nil), gw.goals...)
}

// Obstacles returns the obstacle set in row-major order.
func (gw *GridWorld) Obstacles() []Position {
	obstacles := make([]Position, 0, len(gw.obstacles))
	for p := range gw.obstacles {
		obstacles = append(obstacles, p)
	}
	sort.Slice(obstacles, func(i, j int) bool {
		if obstacles[i].Row != obstacles[j].Row {
			return obstacles[i].Row < obstacles[j].Row
		}
		return obstacles[i].Col < obstacles[j].Col
	})
	return obstacles
}

// Snapshot is a read-only copy of everything a renderer needs.
type Snapshot struct {
	Size      GridSize
	Agents    []Position
	Goals     []Position
	Obstacles []Position
	Steps     int
	MaxSteps  int
	AllAtGoal bool
}

// Snapshot copies the current state. The result shares no memory with gw.
func (gw *GridWorld) Snapshot() Snapshot {
	return Snapshot{
		Size:      gw.size,
		Agents:    gw.AgentPositions(),
		Goals:     gw.GoalPositions(),
		Obstacles: gw.Obstacles(),
		Steps:     gw.steps,
		MaxSteps:  gw.maxSteps,
		AllAtGoal: gw.AllAtGoal(),
	}
}
