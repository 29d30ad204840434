package cli

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/hpalin2/picarnav/occupancy"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(&out, &errOut)
	err := app.Run(append([]string{"picarnav"}, args...))
	return out.String(), err
}

func TestParseCell(t *testing.T) {
	cell, err := parseCell("3,-2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cell, test.ShouldResemble, image.Pt(3, -2))

	cell, err = parseCell(" 4 , 5 ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cell, test.ShouldResemble, image.Pt(4, 5))

	for _, text := range []string{"", "3", "1,2,3", "a,1", "1,b"} {
		_, err := parseCell(text)
		test.That(t, err, test.ShouldNotBeNil)
	}
	test.That(t, formatCell(image.Pt(-1, 7)), test.ShouldEqual, "-1,7")
}

func TestNavigateRenderPlan(t *testing.T) {
	dir := t.TempDir()
	worldPath := filepath.Join(dir, "open.world")
	test.That(t, os.WriteFile(worldPath, []byte("C.........G\n"), 0o600), test.ShouldBeNil)
	mapPath := filepath.Join(dir, "map.json")
	pngPath := filepath.Join(dir, "map.png")

	out, err := runApp(t, "navigate", "--world", worldPath, "--map-out", mapPath, "--png", pngPath, "--show-map")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "DONE")
	test.That(t, out, test.ShouldContainSubstring, "10,0")
	test.That(t, out, test.ShouldContainSubstring, "Collisions")

	grid, pose, err := occupancy.LoadFile(mapPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose, test.ShouldNotBeNil)
	test.That(t, pose.Cell(), test.ShouldResemble, image.Pt(9, 0))
	test.That(t, grid.Size(), test.ShouldEqual, 100)
	info, err := os.Stat(pngPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	out, err = runApp(t, "render", "--map", mapPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "C")

	out, err = runApp(t, "plan", "--map", mapPath, "--start", "0,0", "--goal", "5,0", "--inflate", "0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "5 moves")
	test.That(t, out, test.ShouldContainSubstring, "0,0 1,0 2,0 3,0 4,0 5,0")

	_, err = runApp(t, "plan", "--map", mapPath, "--goal", "500,0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "outside the map")

	_, err = runApp(t, "plan", "--map", mapPath)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNavigateGoalFlagWins(t *testing.T) {
	dir := t.TempDir()
	worldPath := filepath.Join(dir, "open.world")
	test.That(t, os.WriteFile(worldPath, []byte("C.........G\n"), 0o600), test.ShouldBeNil)

	out, err := runApp(t, "navigate", "--world", worldPath, "--goal", "4,0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "4,0")
	test.That(t, out, test.ShouldContainSubstring, "DONE")

	_, err = runApp(t, "navigate", "--world", worldPath, "--goal", "four")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "navigate", "--world", filepath.Join(dir, "missing.world"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaultsAndConfig(t *testing.T) {
	out, err := runApp(t, "defaults")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `"tick": "100ms"`)

	cfgPath := filepath.Join(t.TempDir(), "robot.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{"controller": {"inflation_cells": 2}}`), 0o600), test.ShouldBeNil)
	out, err = runApp(t, "--config", cfgPath, "defaults")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, `"inflation_cells": 2`)

	test.That(t, os.WriteFile(cfgPath, []byte(`{"controller": {"tick": "never"}}`), 0o600), test.ShouldBeNil)
	_, err = runApp(t, "--config", cfgPath, "defaults")
	test.That(t, err, test.ShouldNotBeNil)
}
