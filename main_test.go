package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"marl/plotting"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRunChecks(t *testing.T) {
	Convey("When the self checks run", t, func() {
		var buf bytes.Buffer

		Convey("Failures and panics are counted and reported", func() {
			passed, failed := runChecks(&buf, []check{
				{name: "ok", run: func() error { return nil }},
				{name: "bad", run: func() error { return errors.New("boom") }},
				{name: "panics", run: func() error { panic("oops") }},
			})
			So(passed, ShouldEqual, 1)
			So(failed, ShouldEqual, 2)
			So(buf.String(), ShouldContainSubstring, "✓ ok")
			So(buf.String(), ShouldContainSubstring, "✗ bad: boom")
			So(buf.String(), ShouldContainSubstring, "✗ panics: panic: oops")
		})

		Convey("The built-in checks all pass", func() {
			passed, failed := runChecks(&buf, basicChecks())
			So(failed, ShouldEqual, 0)
			So(passed, ShouldEqual, len(basicChecks()))
		})
	})
}

func TestLoadConfig(t *testing.T) {
	Convey("When the config is loaded", t, func() {
		Convey("A missing file elsewhere than the default path is an error", func() {
			_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("A config file overrides the defaults", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			doc := strings.Join([]string{
				"kind: gridworld",
				"def:",
				"  seed: 7",
				"  environment:",
				"    height: 6",
				"    width: 6",
				"    numagents: 3",
				"    maxsteps: 20",
			}, "\n")
			So(os.WriteFile(path, []byte(doc), 0o644), ShouldBeNil)

			cfg, err := loadConfig(path)
			So(err, ShouldBeNil)
			So(cfg.Seed, ShouldEqual, 7)
			So(cfg.Environment.NumAgents, ShouldEqual, 3)
			So(cfg.Environment.MaxSteps, ShouldEqual, 20)
			So(cfg.Evaluation.Episodes, ShouldEqual, 100)
		})
	})
}

func TestRootCmd(t *testing.T) {
	Convey("When the command tree is built", t, func() {
		root := newRootCmd()

		Convey("Every subcommand is registered", func() {
			for _, name := range []string{"serve", "evaluate", "check"} {
				cmd, _, err := root.Find([]string{name})
				So(err, ShouldBeNil)
				So(cmd.Name(), ShouldEqual, name)
			}
		})

		Convey("Flag defaults are visible through the settings", func() {
			So(settings.GetString("config"), ShouldEqual, defaultConfigPath)
			So(settings.GetString("addr"), ShouldEqual, ":8080")
			So(settings.GetString("out"), ShouldEqual, "results/results.yaml")
		})

		Convey("Environment variables override flag defaults", func() {
			t.Setenv("MARL_STEP_DELAY", "1s")
			So(settings.GetDuration("step-delay").Seconds(), ShouldEqual, 1)
		})

		Convey("The check command succeeds", func() {
			var buf bytes.Buffer
			root.SetOut(&buf)
			root.SetArgs([]string{"check"})
			So(root.Execute(), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "Passed 4/4 checks")
		})
	})
}

func TestSavePlot(t *testing.T) {
	Convey("When a plot is saved", t, func() {
		dir := t.TempDir()

		Convey("Its output lands in the file", func() {
			path := filepath.Join(dir, "curve.svg")
			So(savePlot(path, func(w io.Writer) error {
				_, err := io.WriteString(w, "<svg/>")
				return err
			}), ShouldBeNil)
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "<svg/>")
		})

		Convey("A plot without data leaves no file behind", func() {
			path := filepath.Join(dir, "empty.svg")
			So(savePlot(path, func(w io.Writer) error {
				return plotting.LearningCurve(w, nil, plotting.CurveOptions{})
			}), ShouldBeNil)
			_, err := os.Stat(path)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})

		Convey("Other plot errors are returned with the file name", func() {
			err := savePlot(filepath.Join(dir, "bad.svg"), func(io.Writer) error {
				return errors.New("boom")
			})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "bad.svg: boom")
		})

		Convey("An unwritable path is an error", func() {
			err := savePlot(filepath.Join(dir, "missing", "x.svg"), func(io.Writer) error { return nil })
			So(err, ShouldNotBeNil)
		})
	})
}
