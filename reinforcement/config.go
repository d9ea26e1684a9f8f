package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"marl/grid_world"
	"marl/seeding"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigKind is the only envelope kind FromYaml accepts.
const ConfigKind = "gridworld"

var ErrUnknownKind error = errors.New("unknown config kind")

// OuterConfig is the envelope of every config file: a kind selector and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// Config describes an environment and how to evaluate agents in it. Yaml keys
// are lowercase because viper folds key case before the def is re-decoded.
type Config struct {
	// Seed reseeds the shared generator before the environment is built.
	Seed int64 `yaml:"seed"`
	// Environment holds the gridworld construction parameters.
	Environment grid_world.Config `yaml:"environment"`
	// Obstacles are applied wholesale once the environment is built.
	Obstacles []grid_world.Position `yaml:"obstacles"`
	// Evaluation controls evaluation runs and curve smoothing.
	Evaluation EvaluationConfig `yaml:"evaluation"`
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Deadline is a duration after which a run is cancelled, e.g. {duration: 30s}.
	Deadline map[string]string `yaml:"deadline"`
}

type EvaluationConfig struct {
	Episodes int `yaml:"episodes"`
	Window   int `yaml:"window"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// DefaultConfig returns the config used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Seed:        seeding.DefaultSeed,
		Environment: grid_world.DefaultConfig(),
		Evaluation: EvaluationConfig{
			Episodes: 100,
			Window:   10,
		},
	}
}

func (cfg *Config) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// WithDeadline returns a context extended by the run deadline, if one is specified.
func (cfg *Config) WithDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.Deadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("deadline duration %q: %w", val, err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// NewGridWorld reseeds the shared generator and builds the configured environment.
func (cfg *Config) NewGridWorld() (*grid_world.GridWorld, error) {
	seeding.SetSeed(cfg.Seed)
	gw, err := grid_world.New(cfg.Environment)
	if err != nil {
		return nil, err
	}
	gw.AddObstacles(cfg.Obstacles)
	return gw, nil
}

// Params flattens the config into the name/value table shown by PrintHyperparameters.
func (cfg *Config) Params() map[string]any {
	params := map[string]any{
		"seed":             cfg.Seed,
		"height":           cfg.Environment.Height,
		"width":            cfg.Environment.Width,
		"num_agents":       cfg.Environment.NumAgents,
		"max_steps":        cfg.Environment.MaxSteps,
		"reward_goal":      cfg.Environment.RewardGoal,
		"reward_step":      cfg.Environment.RewardStep,
		"reward_collision": cfg.Environment.RewardCollision,
		"obstacles":        len(cfg.Obstacles),
		"eval_episodes":    cfg.Evaluation.Episodes,
		"window":           cfg.Evaluation.Window,
	}
	for _, kvp := range cfg.HyperParams {
		params[kvp.Key] = kvp.Val
	}
	return params
}

// FromYaml reads a kind/def envelope with viper and decodes the def over the defaults.
// Fields absent from the file keep their DefaultConfig values.
func FromYaml(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != ConfigKind {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownKind, outerConfig.Kind, filepath.Base(path))
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := DefaultConfig()
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
