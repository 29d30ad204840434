// Package utils contains small helpers shared across picarnav packages.
package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// ModAngDeg wraps an angle into [0, 360).
func ModAngDeg(ang float64) float64 {
	return math.Mod(math.Mod(ang, 360)+360, 360)
}

// SignedAngleDiffDeg returns the smallest rotation from a1 to a2, in (-180, 180]. Positive is CCW.
func SignedAngleDiffDeg(a1, a2 float64) float64 {
	diff := ModAngDeg(a2 - a1)
	if diff > 180 {
		diff -= 360
	}
	return diff
}

// AbsInt returns the absolute value of n.
func AbsInt(n int) int {
	if n < 0 {
		return -1 * n
	}
	return n
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
