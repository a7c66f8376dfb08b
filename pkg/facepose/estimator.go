package facepose

// Estimator turns a JPEG frame into head tilt angles
type Estimator struct {
	detector Detector
	model    PoseModel
}

// NewEstimator wraps a detector. The estimator owns it; Close closes it.
func NewEstimator(detector Detector, model PoseModel) *Estimator {
	return &Estimator{detector: detector, model: model}
}

// Estimate detects the monitored face in jpeg and returns its pose.
// Returns ErrNoFace when nothing usable is in the frame.
func (e *Estimator) Estimate(jpeg []byte) (Pose, *Face, error) {
	faces, err := e.detector.Detect(jpeg)
	if err != nil {
		return Pose{}, nil, err
	}
	best := SelectBest(faces)
	if best == nil {
		return Pose{}, nil, ErrNoFace
	}
	pose, err := EstimatePose(*best, e.model)
	if err != nil {
		return Pose{}, best, err
	}
	return pose, best, nil
}

// HeadTilt returns the pose as classifier head tilt axes:
// x nod, y rotation, z ear to shoulder.
func (e *Estimator) HeadTilt(jpeg []byte) (x, y, z float64, err error) {
	pose, _, err := e.Estimate(jpeg)
	if err != nil {
		return 0, 0, 0, err
	}
	return pose.Pitch, pose.Yaw, pose.Roll, nil
}

// Close releases the underlying detector
func (e *Estimator) Close() error {
	return e.detector.Close()
}
