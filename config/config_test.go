package config

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/hpalin2/picarnav/logging"
	"github.com/hpalin2/picarnav/motionplan"
	"github.com/hpalin2/picarnav/services/navigation"
)

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader("somepath", strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"grid": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{"wheels": {}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "wheels")

	conf, err := FromReader("somepath", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldBeNil)
	expected := Default()
	expected.ConfigFilePath = "somepath"
	test.That(t, conf, test.ShouldResemble, expected)

	for _, tc := range []struct {
		description string
		doc         string
		expected    []string
	}{
		{"grid too small", `{"grid": {"size": 1}}`, []string{"config.grid", "size"}},
		{"no cell size", `{"grid": {"cell_size_cm": 0}}`, []string{"config.grid", `"cell_size_cm" is required`}},
		{"bad duration", `{"controller": {"tick": 100}}`, []string{"duration must be a string"}},
		{"unparsable duration", `{"controller": {"tick": "soon"}}`, []string{"soon"}},
		{"zero tick", `{"controller": {"tick": "0s"}}`, []string{`"tick" is required`}},
		{"bad heuristic", `{"planner": {"heuristic": "dijkstra"}}`, []string{"config.planner", "dijkstra"}},
		{"bad sweep", `{"scan": {"step_deg": -1}}`, []string{"config.scan", "step_deg"}},
		{
			"hard stop beyond threshold",
			`{"proximity": {"hard_stop_cm": 90}}`,
			[]string{"config.proximity", "obstacle threshold"},
		},
		{"bad detector", `{"simulation": {"detector": "coin"}}`, []string{"config.simulation", "coin"}},
		{"bad level", `{"log": {"level": "loud"}}`, []string{"config.log", "loud"}},
		{
			"bad pattern",
			`{"log": {"levels": [{"pattern": "a..b", "level": "info"}]}}`,
			[]string{"config.log.levels.0", "a..b"},
		},
		{"negative hold", `{"vision": {"hold_for": {"dog": "-1s"}}}`, []string{"config.vision.hold_for", "dog"}},
		{"no poll interval", `{"vision": {"interval": "0s"}}`, []string{`"interval" is required`}},
	} {
		t.Run(tc.description, func(t *testing.T) {
			_, err := FromReader("somepath", strings.NewReader(tc.doc))
			test.That(t, err, test.ShouldNotBeNil)
			for _, substr := range tc.expected {
				test.That(t, err.Error(), test.ShouldContainSubstring, substr)
			}
		})
	}
}

func TestDefaultMatchesNavigation(t *testing.T) {
	nav, err := Default().Navigation()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nav, test.ShouldResemble, navigation.DefaultConfig())
}

func TestRead(t *testing.T) {
	t.Setenv("PICARNAV_GOAL_X", "20")
	conf, err := Read(filepath.Join("data", "robot.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, filepath.Join("data", "robot.json"))
	test.That(t, conf.Log.Level, test.ShouldEqual, "warn")
	test.That(t, conf.Simulation.Detector, test.ShouldEqual, DetectorRandom)

	nav, err := conf.Navigation()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nav.Goal, test.ShouldResemble, image.Pt(20, 0))
	test.That(t, nav.GridSize, test.ShouldEqual, 60)
	test.That(t, nav.InflationCells, test.ShouldEqual, 2)
	test.That(t, nav.ReplanInterval, test.ShouldEqual, 3*time.Second)
	test.That(t, nav.Planner.Heuristic, test.ShouldEqual, motionplan.HeuristicEuclidean)
	test.That(t, nav.Scan.StepDeg, test.ShouldEqual, 10.)
	test.That(t, nav.Mapping.ScanStepDeg, test.ShouldEqual, 10.)
	test.That(t, nav.Scan.SettleTime, test.ShouldEqual, 50*time.Millisecond)
	// the untouched parts of a section keep their defaults
	test.That(t, nav.Scan.MaxAngleDeg, test.ShouldEqual, 90.)
	test.That(t, nav.Tick, test.ShouldEqual, 100*time.Millisecond)
	test.That(t, nav.Vision.TriggerLabels, test.ShouldResemble, []string{"person", "stop sign", "dog"})
	test.That(t, nav.Vision.HoldFor, test.ShouldResemble, map[string]time.Duration{"dog": time.Second})

	robot := conf.Robot()
	test.That(t, robot.CellSizeCm, test.ShouldEqual, nav.Mapping.CellSizeCm)
	test.That(t, robot.NoiseCm, test.ShouldEqual, 1)
	test.That(t, robot.SensorLimitCm, test.ShouldEqual, nav.Scan.SensorLimitCm)

	t.Setenv("PICARNAV_LOG_LEVEL", "shouting")
	_, err = Read(filepath.Join("data", "robot.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "shouting")

	_, err = Read(filepath.Join("data", "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read config")
}

func TestWriteRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, Default().Write(&buf), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, `"tick": "100ms"`)

	conf, err := FromReader("", &buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, Default())
}

func TestLogApply(t *testing.T) {
	logger := logging.NewBlankLogger("config-test")
	cfg := LogConfig{Level: "warn"}
	file, err := cfg.Apply(logger, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, file, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.WARN)

	_, err = cfg.Apply(logger, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)

	cfg = LogConfig{Level: "info", File: LogFileConfig{Path: filepath.Join(t.TempDir(), "picarnav.log")}}
	file, err = cfg.Apply(logger, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, file, test.ShouldNotBeNil)
	logger.Info("hello")
	test.That(t, file.Sync(), test.ShouldBeNil)

	cfg = LogConfig{Level: "nope"}
	_, err = cfg.Apply(logger, false)
	test.That(t, err, test.ShouldNotBeNil)
}
