package reinforcement

import (
	"marl/grid_world"
	"marl/seeding"

	"gonum.org/v1/gonum/mat"
)

// Agent picks one action per step from the shared observation. In eval mode an
// agent should act without exploration.
type Agent interface {
	SelectAction(obs mat.Vector, evalMode bool) grid_world.Action
}

// RandomAgent acts uniformly over the action space.
type RandomAgent struct{}

func (RandomAgent) SelectAction(_ mat.Vector, _ bool) grid_world.Action {
	return grid_world.Action(seeding.Intn(grid_world.NumActions))
}

// GoalSource reports goal positions indexed by agent id; *grid_world.GridWorld satisfies it.
type GoalSource interface {
	GoalPositions() []grid_world.Position
}

// GreedyAgent walks toward its own goal, closing the row gap before the column
// gap. Outside eval mode it acts randomly with probability Epsilon.
type GreedyAgent struct {
	ID      int
	Goals   GoalSource
	Epsilon float64
}

func NewGreedyAgent(id int, goals GoalSource, epsilon float64) *GreedyAgent {
	return &GreedyAgent{
		ID:      id,
		Goals:   goals,
		Epsilon: epsilon,
	}
}

func (ga *GreedyAgent) SelectAction(obs mat.Vector, evalMode bool) grid_world.Action {
	if !evalMode && ga.Epsilon > 0 && seeding.Float64() < ga.Epsilon {
		return grid_world.Action(seeding.Intn(grid_world.NumActions))
	}

	goals := ga.Goals.GoalPositions()
	if ga.ID < 0 || ga.ID >= len(goals) || 2*ga.ID+1 >= obs.Len() {
		return grid_world.Stay
	}
	goal := goals[ga.ID]
	row := int(obs.AtVec(2 * ga.ID))
	col := int(obs.AtVec(2*ga.ID + 1))

	switch {
	case goal.Row < row:
		return grid_world.Up
	case goal.Row > row:
		return grid_world.Down
	case goal.Col < col:
		return grid_world.Left
	case goal.Col > col:
		return grid_world.Right
	}
	return grid_world.Stay
}

// NewTeam builds one agent per id: greedy when epsilon is below one, random otherwise.
func NewTeam(numAgents int, goals GoalSource, epsilon float64) []Agent {
	agents := make([]Agent, 0, numAgents)
	for i := 0; i < numAgents; i++ {
		if epsilon >= 1 {
			agents = append(agents, RandomAgent{})
			continue
		}
		agents = append(agents, NewGreedyAgent(i, goals, epsilon))
	}
	return agents
}

// Policy tabulates the agent's eval-mode action from every cell of a grid,
// with the other agents' coordinates left at the origin. An id outside
// [0, numAgents) stays put everywhere.
func (ga *GreedyAgent) Policy(size grid_world.GridSize, numAgents int) [][]int {
	policy := make([][]int, size.Height)
	for r := range policy {
		policy[r] = make([]int, size.Width)
		for c := range policy[r] {
			policy[r][c] = int(grid_world.Stay)
		}
	}
	if ga.ID < 0 || ga.ID >= numAgents {
		return policy
	}

	obs := mat.NewVecDense(2*numAgents, nil)
	for r := range policy {
		for c := range policy[r] {
			obs.SetVec(2*ga.ID, float64(r))
			obs.SetVec(2*ga.ID+1, float64(c))
			policy[r][c] = int(ga.SelectAction(obs, true))
		}
	}
	return policy
}
