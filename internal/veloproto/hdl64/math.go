package hdl64

import "math"

// sincos returns the sine and cosine of an angle given in degrees.
func sincos(degrees float32) (sin, cos float32) {
	s, c := math.Sincos(float64(degrees) * math.Pi / 180)
	return float32(s), float32(c)
}
