package fatigue

import "math"

// Measurement is one frame of facial geometry as produced by the face
// landmark detector. Optional signals are pointers; nil means the
// detector did not provide them for this frame.
type Measurement struct {
	EAR float64 // Eye aspect ratio, lower = more closed
	MAR float64 // Mouth aspect ratio, higher = more open

	// Head pose in degrees: X nod, Y rotation, Z ear-to-shoulder tilt
	HeadTiltX *float64
	HeadTiltY *float64
	HeadTiltZ *float64

	// Eyelid-open probabilities in [0,1]
	LeftEyeOpenProb  *float64
	RightEyeOpenProb *float64
}

// Float returns a pointer to v, for filling optional Measurement fields
func Float(v float64) *float64 {
	return &v
}

// NewMeasurement builds a measurement with all three head tilt axes present
func NewMeasurement(ear, mar, tiltX, tiltY, tiltZ float64) Measurement {
	return Measurement{
		EAR:       ear,
		MAR:       mar,
		HeadTiltX: Float(tiltX),
		HeadTiltY: Float(tiltY),
		HeadTiltZ: Float(tiltZ),
	}
}

// WithEyeOpenProbs returns a copy of m carrying eyelid-open probabilities
func (m Measurement) WithEyeOpenProbs(left, right float64) Measurement {
	m.LeftEyeOpenProb = Float(left)
	m.RightEyeOpenProb = Float(right)
	return m
}

// EyeOpenProb returns the mean eyelid-open probability.
// ok is false unless both eyes were reported.
func (m Measurement) EyeOpenProb() (prob float64, ok bool) {
	if m.LeftEyeOpenProb == nil || m.RightEyeOpenProb == nil {
		return 0, false
	}
	return (*m.LeftEyeOpenProb + *m.RightEyeOpenProb) / 2, true
}

// Tilts returns the three head tilt angles, reading absent axes as 0
func (m Measurement) Tilts() (x, y, z float64) {
	return valueOrZero(m.HeadTiltX), valueOrZero(m.HeadTiltY), valueOrZero(m.HeadTiltZ)
}

// HasFullHeadPose reports whether all three tilt axes are present
func (m Measurement) HasFullHeadPose() bool {
	return m.HeadTiltX != nil && m.HeadTiltY != nil && m.HeadTiltZ != nil
}

// maxAbsTilt is the largest tilt magnitude over the present axes
func (m Measurement) maxAbsTilt() float64 {
	x, y, z := m.Tilts()
	return math.Max(math.Abs(x), math.Max(math.Abs(y), math.Abs(z)))
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
