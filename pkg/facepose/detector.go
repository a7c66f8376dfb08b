// Package facepose estimates head pose from a camera frame.
//
// A Detector finds faces and their five YuNet landmarks; EstimatePose turns
// those landmarks into nod, rotation and ear-to-shoulder angles in degrees,
// the head tilt inputs of the fatigue classifier.
package facepose

import "errors"

// ErrNoFace is returned when a frame contains no usable face.
var ErrNoFace = errors.New("facepose: no face detected")

// Landmark indices in Face.Landmarks, in YuNet output order.
// Right and left are from the subject's point of view.
const (
	RightEye = iota
	LeftEye
	NoseTip
	RightMouth
	LeftMouth
	numLandmarks
)

// Point is a landmark position, normalized to 0-1 of the image size
type Point struct {
	X, Y float64
}

// Face represents a detected face
type Face struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)

	Landmarks [numLandmarks]Point

	// Source image size in pixels, used to undo the normalization
	// before measuring angles
	ImageWidth  int
	ImageHeight int
}

// Center returns the center point of the face box
func (f Face) Center() (x, y float64) {
	return f.X + f.W/2, f.Y + f.H/2
}

// Area returns the area of the bounding box
func (f Face) Area() float64 {
	return f.W * f.H
}

// pixel returns landmark i in pixel units
func (f Face) pixel(i int) Point {
	w, h := float64(f.ImageWidth), float64(f.ImageHeight)
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	return Point{X: f.Landmarks[i].X * w, Y: f.Landmarks[i].Y * h}
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in a JPEG image
	Detect(jpeg []byte) ([]Face, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	NMSThresh        float64 // Non-maximum suppression overlap
	TopK             int     // Candidates kept before NMS
	InputWidth       int     // Initial model input width
	InputHeight      int     // Initial model input height
}

// DefaultConfig returns production defaults for YuNet.
// The threshold sits a little above the usual 0.5 because a poor face
// box yields a poor pose.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		NMSThresh:        0.3,
		TopK:             5000,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// SelectBest picks the monitored face when several are visible.
// Priority: confidence * 0.7 + relative area * 0.3, so the driver close
// to the camera wins over a passenger in the back.
func SelectBest(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence * 0.7
		if maxArea > 0 {
			score += faces[i].Area() / maxArea * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}

// RowColumns is the width of one YuNet output row
const RowColumns = 15

// FaceFromRow normalizes one detector output row to the image size.
// Columns: 0-3 box, 4-13 five landmark (x,y) pairs, 14 score.
func FaceFromRow(row [RowColumns]float32, width, height int) Face {
	w, h := float64(width), float64(height)
	f := Face{
		X:           float64(row[0]) / w,
		Y:           float64(row[1]) / h,
		W:           float64(row[2]) / w,
		H:           float64(row[3]) / h,
		Confidence:  float64(row[14]),
		ImageWidth:  width,
		ImageHeight: height,
	}
	for i := 0; i < numLandmarks; i++ {
		f.Landmarks[i] = Point{
			X: float64(row[4+2*i]) / w,
			Y: float64(row[5+2*i]) / h,
		}
	}
	return f
}
