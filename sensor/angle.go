package sensor

import "math"

// NormalizeAngle wraps angle theta given in radians into (-Pi, Pi].
func NormalizeAngle(theta float64) float64 {
	a := math.Remainder(theta, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}

	return a
}
