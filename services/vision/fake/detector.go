// Package fake implements fake detectors.
package fake

import (
	"context"
	"image"
	"math/rand"
	"sync"

	"github.com/hpalin2/picarnav/services/vision"
)

// Detector returns scripted frames in order, then repeats the last frame. With no script it
// simulates a camera that now and then sees a person (10%) or a stop sign (5%).
type Detector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	frames [][]vision.Detection
	calls  int
	err    error
}

// NewRandomDetector returns a detector producing random sightings from rng.
func NewRandomDetector(rng *rand.Rand) *Detector {
	return &Detector{rng: rng}
}

// NewScriptedDetector returns a detector that plays back frames.
func NewScriptedDetector(frames ...[]vision.Detection) *Detector {
	return &Detector{frames: frames}
}

// SetError makes subsequent calls fail with err, or succeed again when err is nil.
func (d *Detector) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls is the number of Detect calls so far.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Detect returns the next frame.
func (d *Detector) Detect(ctx context.Context) ([]vision.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if d.rng != nil {
		return d.random(), nil
	}
	if len(d.frames) == 0 {
		return nil, nil
	}
	idx := min(d.calls-1, len(d.frames)-1)
	return append([]vision.Detection(nil), d.frames[idx]...), nil
}

func (d *Detector) random() []vision.Detection {
	var out []vision.Detection
	if d.rng.Float64() < 0.1 {
		out = append(out, vision.Detection{Label: "person", Confidence: 0.85, Box: image.Rect(100, 100, 200, 300)})
	}
	if d.rng.Float64() < 0.05 {
		out = append(out, vision.Detection{Label: "stop sign", Confidence: 0.90, Box: image.Rect(300, 150, 400, 250)})
	}
	return out
}

// Person is a confident person detection.
func Person() []vision.Detection {
	return []vision.Detection{{Label: "person", Confidence: 0.9, Box: image.Rect(0, 0, 10, 20)}}
}

// StopSign is a confident stop sign detection.
func StopSign() []vision.Detection {
	return []vision.Detection{{Label: "stop_sign", Confidence: 0.9, Box: image.Rect(0, 0, 10, 10)}}
}
