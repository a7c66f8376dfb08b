package yunet

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/teslashibe/go-fatigue/pkg/facepose"
)

func TestNewInvalidPath(t *testing.T) {
	cfg := facepose.DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestDetect_InvalidImage(t *testing.T) {
	detector := newTestDetector(t)
	defer detector.Close()

	if _, err := detector.Detect([]byte{}); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := detector.Detect([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestDetect_NoFace(t *testing.T) {
	detector := newTestDetector(t)
	defer detector.Close()

	faces, err := detector.Detect(solidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) > 0 {
		t.Errorf("Expected no faces in solid color image, got %d", len(faces))
	}

	_, _, _, err = facepose.NewEstimator(detector, facepose.DefaultPoseModel()).HeadTilt(solidJPEG(320, 240, color.Black))
	if !errors.Is(err, facepose.ErrNoFace) {
		t.Errorf("HeadTilt error = %v, want ErrNoFace", err)
	}
}

func TestDetectConcurrency(t *testing.T) {
	detector := newTestDetector(t)
	defer detector.Close()

	img := solidJPEG(320, 240, color.RGBA{100, 100, 100, 255})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := detector.Detect(img); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

// newTestDetector skips the test when the model is not available
func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	path := findModelPath()
	if path == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	cfg := facepose.DefaultConfig()
	cfg.ModelPath = path
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func findModelPath() string {
	if p := os.Getenv("YUNET_MODEL_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/" && dir != "."; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "models", "face_detection_yunet.onnx")
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func solidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
