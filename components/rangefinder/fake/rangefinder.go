// Package fake implements fake range sensors.
package fake

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/hpalin2/picarnav/components/rangefinder"
)

// NoisySensor behaves like a cheap ultrasonic sensor in front of a wall at a fixed distance:
// each reading is the base distance plus uniform integer noise in [-3, 3], never below 5.
type NoisySensor struct {
	mu   sync.Mutex
	base float64
	rng  *rand.Rand
}

// NewNoisySensor returns a sensor seeing a wall at baseCm.
func NewNoisySensor(baseCm float64, rng *rand.Rand) *NoisySensor {
	return &NoisySensor{base: baseCm, rng: rng}
}

// SetBaseDistance moves the simulated wall.
func (s *NoisySensor) SetBaseDistance(cm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = cm
}

// ReadDistance returns a noisy reading.
func (s *NoisySensor) ReadDistance(ctx context.Context) (rangefinder.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	noise := float64(s.rng.Intn(7) - 3)
	return rangefinder.Reading{DistanceCm: math.Max(5, s.base+noise), Valid: true}, nil
}

// ScriptedSensor returns queued readings in order, repeating the last one once exhausted.
type ScriptedSensor struct {
	mu       sync.Mutex
	readings []rangefinder.Reading
	reads    int
}

// NewScriptedSensor returns a sensor that plays back readings.
func NewScriptedSensor(readings ...rangefinder.Reading) *ScriptedSensor {
	return &ScriptedSensor{readings: readings}
}

// ReadDistance returns the next scripted reading, or an invalid one if none were given.
func (s *ScriptedSensor) ReadDistance(ctx context.Context) (rangefinder.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readings) == 0 {
		return rangefinder.Reading{}, nil
	}
	idx := s.reads
	if idx >= len(s.readings) {
		idx = len(s.readings) - 1
	}
	s.reads++
	return s.readings[idx], nil
}

// Reads is the number of readings taken.
func (s *ScriptedSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
