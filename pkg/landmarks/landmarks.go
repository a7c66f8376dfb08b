// Package landmarks converts facial landmark points into the scalar
// ratios the fatigue classifier consumes.
package landmarks

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when a point slice has the wrong size.
var ErrInvalidInput = errors.New("landmarks: invalid input")

const (
	// EyePoints is the number of points in one eye contour
	EyePoints = 6
	// MinMouthPoints is the minimum number of lip contour points
	MinMouthPoints = 10
	// epsilon guards ratio denominators against degenerate geometry
	epsilon = 1e-6
)

// Point is a 2D landmark in image coordinates.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// EyeAspectRatio computes the eye aspect ratio of a 6 point eye contour.
//
// Points are ordered p0 outer corner, p1 and p2 upper lid, p3 inner corner,
// p4 and p5 lower lid:
//
//	EAR = (|p1-p5| + |p2-p4|) / (2 |p0-p3|)
//
// A collapsed eye width yields a large finite value, never Inf or NaN.
func EyeAspectRatio(points []Point) (float64, error) {
	if len(points) != EyePoints {
		return 0, fmt.Errorf("%w: eye needs %d points, got %d", ErrInvalidInput, EyePoints, len(points))
	}
	vertical := points[1].Dist(points[5]) + points[2].Dist(points[4])
	horizontal := points[0].Dist(points[3])
	return vertical / (2*horizontal + epsilon), nil
}

// AverageEyeAspectRatio returns the mean EAR of both eyes.
func AverageEyeAspectRatio(left, right []Point) (float64, error) {
	l, err := EyeAspectRatio(left)
	if err != nil {
		return 0, fmt.Errorf("left eye: %w", err)
	}
	r, err := EyeAspectRatio(right)
	if err != nil {
		return 0, fmt.Errorf("right eye: %w", err)
	}
	return (l + r) / 2, nil
}

// MouthAspectRatio computes the bounding-box height/width ratio of a
// lip contour with at least 10 points.
func MouthAspectRatio(points []Point) (float64, error) {
	if len(points) < MinMouthPoints {
		return 0, fmt.Errorf("%w: mouth needs at least %d points, got %d", ErrInvalidInput, MinMouthPoints, len(points))
	}
	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return (maxY - minY) / (maxX - minX + epsilon), nil
}
