/*
marl is a small toolkit for multi-agent reinforcement learning tutorials: a
gridworld in which a handful of agents walk toward their own goals, a running
mean/variance accumulator for normalizing rewards and observations, and the
helpers around them for evaluating agents, plotting curves, saving results, and
watching episodes live in a browser. Learning algorithms are left to the reader;
the commands here only drive the stock random and greedy agents.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"marl/curves"
	"marl/grid_world"
	"marl/plotting"
	"marl/reinforcement"
	"marl/render"
	"marl/results"
	"marl/server"

	"github.com/joho/godotenv"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConfigPath = "./config.yaml"
	envPrefix         = "MARL"
	defaultEpsilon    = 0.1
)

// settings merges command line flags with MARL_* environment variables; flags win.
var settings = viper.New()

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "marl",
		Short:         "Multi-agent gridworld toolkit: evaluate agents, watch episodes, check the setup.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "path to the gridworld config")
	rootCmd.PersistentFlags().Bool("debug", false, "print the grid to the console after every step")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run episodes continuously and serve a live view of them",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", ":8080", "the host address")
	serveCmd.Flags().Duration("step-delay", 200*time.Millisecond, "pause between steps so episodes can be watched")

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the stock agents and save returns, curves, and plots",
		RunE:  runEvaluate,
	}
	evaluateCmd.Flags().Int("episodes", 0, "number of evaluation episodes (default from config)")
	evaluateCmd.Flags().String("out", "results/results.yaml", "where to save the results")
	evaluateCmd.Flags().String("plots", "", "directory for svg plots, skipped when empty")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify dependencies and basic functionality",
		RunE:  runCheck,
	}

	rootCmd.AddCommand(serveCmd, evaluateCmd, checkCmd)

	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for _, flags := range []*cobra.Command{rootCmd, serveCmd, evaluateCmd} {
		flagSet := flags.Flags()
		if flags == rootCmd {
			flagSet = flags.PersistentFlags()
		}
		if err := settings.BindPFlags(flagSet); err != nil {
			log.Fatal(err)
		}
	}
	return rootCmd
}

func main() {
	for _, envFile := range []string{
		".env",
		"../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file at the default path falls
// back to the built-in defaults; any other path must exist.
func loadConfig(path string) (*reinforcement.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath {
		log.Printf("no config at %s, using defaults", path)
		return reinforcement.DefaultConfig(), nil
	}
	return reinforcement.FromYaml(path)
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	var cfg *reinforcement.Config
	if cfg, err = loadConfig(settings.GetString("config")); err != nil {
		return
	}

	runCtx, cancel, err := cfg.WithDeadline(cmd.Context())
	if err != nil {
		return
	}
	defer cancel()

	gw, err := cfg.NewGridWorld()
	if err != nil {
		return
	}
	if _, err = gw.Reset(); err != nil {
		return
	}

	srv, err := server.NewServer(runCtx, settings.GetString("addr"), gw.Snapshot())
	if err != nil {
		return
	}
	agents := reinforcement.NewTeam(gw.NumAgents(), gw, cfg.GetHyperParamOrDefault("epsilon", defaultEpsilon))
	debug := settings.GetBool("debug")
	delay := settings.GetDuration("step-delay")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return srv.Serve(groupCtx)
	})
	group.Go(func() error {
		progressFn := func(ctx context.Context, p reinforcement.Progress) {
			srv.Observe(ctx, p)
			if debug {
				render.Console(os.Stdout, p.Snapshot)
			}
		}
		if delay > 0 {
			pace := channerics.NewTicker(groupCtx.Done(), delay)
			observe := progressFn
			progressFn = func(ctx context.Context, p reinforcement.Progress) {
				observe(ctx, p)
				select {
				case <-pace:
				case <-ctx.Done():
				}
			}
		}

		for episode := 0; ; episode++ {
			result, runErr := reinforcement.RunEpisode(groupCtx, gw, agents, episode, false, progressFn)
			if runErr != nil {
				if groupCtx.Err() != nil {
					return nil
				}
				return runErr
			}
			log.Printf("episode %d: team return %.2f in %d steps", episode, result.TeamReturn(), result.Steps)
		}
	})

	err = group.Wait()
	return
}

func runEvaluate(cmd *cobra.Command, args []string) (err error) {
	var cfg *reinforcement.Config
	if cfg, err = loadConfig(settings.GetString("config")); err != nil {
		return
	}
	episodes := settings.GetInt("episodes")
	if episodes <= 0 {
		episodes = cfg.Evaluation.Episodes
	}

	runCtx, cancel, err := cfg.WithDeadline(cmd.Context())
	if err != nil {
		return
	}
	defer cancel()

	gw, err := cfg.NewGridWorld()
	if err != nil {
		return
	}
	agents := reinforcement.NewTeam(gw.NumAgents(), gw, cfg.GetHyperParamOrDefault("epsilon", defaultEpsilon))

	params := cfg.Params()
	params["eval_episodes"] = episodes
	reinforcement.PrintHyperparameters(os.Stdout, params)

	size := gw.GridSize()
	visits := make([][]float64, size.Height)
	for r := range visits {
		visits[r] = make([]float64, size.Width)
	}
	debug := settings.GetBool("debug")
	progressFn := func(_ context.Context, p reinforcement.Progress) {
		for _, pos := range p.Snapshot.Agents {
			visits[pos.Row][pos.Col]++
		}
		if debug {
			render.Console(os.Stdout, p.Snapshot)
		}
	}

	ev, err := reinforcement.EvaluateAgents(runCtx, gw, agents, episodes, progressFn)
	if err != nil {
		return
	}
	fmt.Printf("Mean team return: %.2f +/- %.2f\n", ev.Mean, ev.Std)
	fmt.Printf("Success rate: %.2f\n", ev.SuccessRate())

	run := results.NewRun()
	window := cfg.Evaluation.Window
	if err = results.Save(settings.GetString("out"), map[string]any{
		"run":            run,
		"hyperparams":    params,
		"team_returns":   ev.TeamReturns,
		"agent_returns":  ev.AgentReturns,
		"moving_average": curves.MovingAverage(ev.TeamReturns, window),
		"moving_std":     curves.MovingStd(ev.TeamReturns, window),
		"mean_return":    ev.Mean,
		"std_return":     ev.Std,
		"success_rate":   ev.SuccessRate(),
		"running_mean":   ev.Stats.Mean(),
		"running_std":    ev.Stats.Std(),
		"visits":         visits,
	}); err != nil {
		return
	}

	if dir := settings.GetString("plots"); dir != "" {
		err = writePlots(dir, cfg, ev, agents, visits, size)
	}
	return
}

// writePlots renders the evaluation as svg files in dir.
func writePlots(
	dir string,
	cfg *reinforcement.Config,
	ev *reinforcement.Evaluation,
	agents []reinforcement.Agent,
	visits [][]float64,
	size grid_world.GridSize,
) (err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return
	}

	write := func(name string, plot func(io.Writer) error) error {
		return savePlot(filepath.Join(dir, name), plot)
	}

	window := cfg.Evaluation.Window
	perAgent := map[string][]float64{}
	for i, series := range ev.AgentReturns {
		perAgent[fmt.Sprintf("agent %d", i)] = series
	}

	if err = write("learning_curve.svg", func(f io.Writer) error {
		return plotting.LearningCurve(f, ev.TeamReturns, plotting.CurveOptions{
			Window:  window,
			Title:   "Evaluation Team Returns",
			ShowStd: true,
		})
	}); err != nil {
		return
	}
	if err = write("agent_curves.svg", func(f io.Writer) error {
		return plotting.MultiAgentLearningCurves(f, perAgent, window, "Per-Agent Returns")
	}); err != nil {
		return
	}
	if err = write("visits.svg", func(f io.Writer) error {
		return plotting.ValueFunction(f, visits, "State Visitation")
	}); err != nil {
		return
	}

	if greedy, ok := agents[0].(*reinforcement.GreedyAgent); ok {
		policy := greedy.Policy(size, len(agents))
		err = write("policy.svg", func(f io.Writer) error {
			return plotting.Policy(f, policy, "Agent 0 Greedy Policy")
		})
	}
	return
}

// savePlot writes one plot to path. A plot with no data leaves no file behind.
func savePlot(path string, plot func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	plotErr := plot(f)
	if err = f.Close(); err != nil && plotErr == nil {
		return err
	}

	switch {
	case errors.Is(plotErr, plotting.ErrNoData):
		log.Printf("no data for %s, skipped", path)
		return os.Remove(path)
	case plotErr != nil:
		return fmt.Errorf("%s: %w", filepath.Base(path), plotErr)
	}
	log.Printf("plot saved to %s", path)
	return nil
}
