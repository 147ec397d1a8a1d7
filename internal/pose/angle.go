package pose

import (
	"errors"
	"math"
)

var ErrDegenerate = errors.New("degenerate joint triple")

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// AngleAt returns the angle, in degrees within [0, 360), swept from the
// vector vertex->a to the vector vertex->b.
// ErrDegenerate is returned when the vertex coincides with a or b.
func AngleAt(vertex, a, b Point) (float64, error) {
	u := a.Sub(vertex)
	w := b.Sub(vertex)
	if (u.X == 0 && u.Y == 0) || (w.X == 0 && w.Y == 0) {
		return 0, ErrDegenerate
	}
	for _, c := range []float64{u.X, u.Y, w.X, w.Y} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, ErrDegenerate
		}
	}

	cross := u.X*w.Y - u.Y*w.X
	dot := u.X*w.X + u.Y*w.Y
	deg := math.Atan2(cross, dot) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	// -0.0 and rounding right below 0 can land exactly on 360
	if deg >= 360 {
		deg -= 360
	}
	return deg, nil
}
