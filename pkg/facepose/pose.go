package facepose

import (
	"fmt"
	"math"
)

// Pose is a head orientation in degrees.
//
//	Pitch: nod, positive when the head drops forward (head_tilt_x)
//	Yaw:   rotation, positive toward the subject's left (head_tilt_y)
//	Roll:  ear to shoulder, positive toward the subject's left shoulder (head_tilt_z)
type Pose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// PoseModel holds the face proportions used by EstimatePose
type PoseModel struct {
	// Nose tip depth in front of the eye plane, as a fraction of the
	// interocular distance
	NoseDepthRatio float64
	// Vertical position of the nose tip between eye line (0) and mouth
	// line (1) when looking straight at the camera
	NeutralNoseRatio float64
	// Faces whose eyes are closer than this many pixels are too small
	// to measure
	MinEyeDistance float64
}

// DefaultPoseModel returns average adult face proportions
func DefaultPoseModel() PoseModel {
	return PoseModel{
		NoseDepthRatio:   0.6,
		NeutralNoseRatio: 0.55,
		MinEyeDistance:   8,
	}
}

// EstimatePose derives head pose from the five landmarks of f.
//
// Roll is the angle of the eye line. The landmarks are then rotated by
// -roll around the eye midpoint so yaw and pitch are measured on an
// upright face. Yaw comes from the horizontal nose offset against the eye
// midpoint. Pitch comes from where the nose sits between eye line and
// mouth line.
func EstimatePose(f Face, model PoseModel) (Pose, error) {
	rightEye, leftEye := f.pixel(RightEye), f.pixel(LeftEye)
	nose := f.pixel(NoseTip)
	rightMouth, leftMouth := f.pixel(RightMouth), f.pixel(LeftMouth)

	dx, dy := leftEye.X-rightEye.X, leftEye.Y-rightEye.Y
	eyeDist := math.Hypot(dx, dy)
	if eyeDist < model.MinEyeDistance {
		return Pose{}, fmt.Errorf("%w: eye distance %.1fpx below %.1fpx", ErrNoFace, eyeDist, model.MinEyeDistance)
	}

	// The subject's right eye is on the image left, so an upright face has dx > 0
	roll := math.Atan2(dy, dx)

	eyeMid := midpoint(rightEye, leftEye)
	upright := func(p Point) Point { return rotate(p, eyeMid, -roll) }
	nose = upright(nose)
	mouthMid := upright(midpoint(rightMouth, leftMouth))

	// Yaw: nose offset / (eye distance * depth) = tan(yaw)
	offset := nose.X - eyeMid.X
	yaw := math.Atan2(offset, eyeDist*model.NoseDepthRatio)

	// Pitch: the nose drops below its neutral height by depth * sin(pitch).
	// Yaw foreshortens the eye line, so undo that before using it as scale.
	faceHeight := mouthMid.Y - eyeMid.Y
	if faceHeight <= 0 {
		return Pose{}, fmt.Errorf("%w: mouth above eye line", ErrNoFace)
	}
	ratio := (nose.Y - eyeMid.Y) / faceHeight
	depth := eyeDist / math.Cos(yaw) * model.NoseDepthRatio
	pitch := math.Asin(clamp((ratio-model.NeutralNoseRatio)*faceHeight/depth, -1, 1))

	return Pose{
		Pitch: degrees(pitch),
		Yaw:   degrees(yaw),
		Roll:  degrees(roll),
	}, nil
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// rotate turns p around c by angle radians
func rotate(p, c Point, angle float64) Point {
	sin, cos := math.Sincos(angle)
	x, y := p.X-c.X, p.Y-c.Y
	return Point{X: c.X + x*cos - y*sin, Y: c.Y + x*sin + y*cos}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
