package fatigue

import "math"

// Head tilt significance. X (nod) and Y (rotation) share one bound;
// Z (ear to shoulder) always uses a lower bound because a slumping head
// rolls less than it nods.

// ModerateTiltSignificant reports whether any axis exceeds the
// multi-indicator head tilt bound.
func (c Config) ModerateTiltSignificant(x, y, z float64) bool {
	xy := c.HeadTiltThreshold * c.MultiHeadTiltMultiplier
	zb := c.HeadTiltThreshold * c.ShoulderTiltMultiplier
	return math.Abs(x) > xy || math.Abs(y) > xy || math.Abs(z) > zb
}

// SevereTiltSignificant reports whether any axis exceeds the severe bound.
// All three axes must be present; missing pose data never escalates.
func (c Config) SevereTiltSignificant(x, y, z *float64) bool {
	if x == nil || y == nil || z == nil {
		return false
	}
	xy := c.HeadTiltThreshold * c.SevereHeadTiltMultiplier
	zb := c.HeadTiltThreshold * c.SevereShoulderTiltMultiplier
	return math.Abs(*x) > xy || math.Abs(*y) > xy || math.Abs(*z) > zb
}

// confidenceTiltSignificant is the head tilt test of the confidence term
func (c Config) confidenceTiltSignificant(x, y, z float64) bool {
	xy := c.HeadTiltThreshold * c.HeadTiltConfidenceMultiplier
	zb := c.HeadTiltThreshold * c.ShoulderTiltMultiplier
	return math.Abs(x) > xy || math.Abs(y) > xy || math.Abs(z) > zb
}
