// Package yunet implements facepose.Detector with OpenCV's YuNet model.
// It needs cgo and an OpenCV install; the rest of facepose does not.
package yunet

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/facepose"
	"gocv.io/x/gocv"
)

// Detector uses OpenCV's FaceDetectorYN for face detection
type Detector struct {
	detector gocv.FaceDetectorYN
	config   facepose.Config
	mu       sync.Mutex // Protects inference
}

// New creates a YuNet face detector
func New(cfg facepose.Config) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is updated per image in Detect
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // ONNX needs no config file
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Detector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces and their landmarks in the JPEG image
func (d *Detector) Detect(jpeg []byte) ([]facepose.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()

	d.detector.Detect(img, &out)

	var faces []facepose.Face
	for r := 0; r < out.Rows(); r++ {
		var row [facepose.RowColumns]float32
		for c := range row {
			row[c] = out.GetFloatAt(r, c)
		}
		faces = append(faces, facepose.FaceFromRow(row, img.Cols(), img.Rows()))
	}

	if len(faces) > 0 {
		log.Debug("yunet detection", "faces", len(faces))
	}
	return faces, nil
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
