// Package fatigue classifies drowsiness from per-frame facial geometry.
//
// A Classifier owns the state of one monitoring session: eye closure and
// mouth opening run lengths, blink and yawn counters, and a rolling
// window of decided levels. Every call to ProcessFrame advances that
// state by one frame and returns a DetectionResult.
//
// A Classifier is not safe for concurrent use. Frames must be fed in
// capture order, one subject per Classifier.
package fatigue

import (
	"fmt"
	"time"
)

// DetectionResult is the classifier output for one frame
type DetectionResult struct {
	Level           Level     `json:"level"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
	TriggeredSpray  bool      `json:"triggered_spray"`
	DrowsinessScore float64   `json:"drowsiness_score"`
}

// SessionState is a read-only snapshot of the session counters
type SessionState struct {
	EyeClosureRunLength int       `json:"eye_closure_run_length"`
	MouthOpenRunLength  int       `json:"mouth_open_run_length"`
	BlinkCount          int       `json:"blink_count"`
	YawnCount           int       `json:"yawn_count"`
	LastResetTime       time.Time `json:"last_reset_time"`
	LevelHistory        []Level   `json:"level_history"`
	LastStableLevel     Level     `json:"last_stable_level"`
	Frames              uint64    `json:"frames"`
}

// Classifier is the per-subject fatigue state machine
type Classifier struct {
	cfg    Config
	now    func() time.Time
	tracer Tracer

	eyeRun      int
	mouthRun    int
	yawnCounted bool // current mouth run already produced a yawn
	blinks      int
	yawns       int
	lastReset   time.Time
	frames      uint64

	smooth smoother
	ears   *sampleRing
}

// NewClassifier validates cfg and returns a fresh session
func NewClassifier(cfg Config, opts ...Option) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{
		cfg:    cfg,
		now:    time.Now,
		smooth: newSmoother(cfg.SmoothingWindow, cfg.SmoothingMajority),
		ears:   newSampleRing(cfg.EARHistorySize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastReset = c.now()
	return c, nil
}

// MustNewClassifier is NewClassifier for configs known to be valid.
// It panics on an invalid config.
func MustNewClassifier(cfg Config, opts ...Option) *Classifier {
	c, err := NewClassifier(cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("fatigue: %v", err))
	}
	return c
}

// Config returns the thresholds this classifier was built with
func (c *Classifier) Config() Config {
	return c.cfg
}

// ProcessFrame consumes one frame of measurements and returns the result.
// It never fails: absent optional signals fall back as documented on Measurement.
func (c *Classifier) ProcessFrame(m Measurement) DetectionResult {
	now := c.now()
	c.frames++

	tr := Trace{Frame: c.frames, Measurement: m}
	tr.CountersReset = c.maybeResetCounters(now)
	c.ears.push(m.EAR)

	// Ordered pipeline. Later stages see the counters updated by earlier ones.
	candidates := make([]Candidate, 0, 4)
	candidates = append(candidates, c.eyeStage(m, &tr))
	candidates = append(candidates, c.mouthStage(m, &tr))
	candidates = append(candidates, c.multiIndicatorStage(m, &tr))
	candidates = append(candidates, c.severeStage(m))

	decided, spray := reduceCandidates(candidates)
	level, smoothed := c.smooth.update(decided)

	result := DetectionResult{
		Level:           level,
		Confidence:      c.cfg.Confidence(m),
		Timestamp:       now,
		TriggeredSpray:  spray,
		DrowsinessScore: c.cfg.DrowsinessScore(c.blinks, c.yawns, m),
	}

	if c.tracer != nil {
		tr.EyeClosureRun = c.eyeRun
		tr.MouthOpenRun = c.mouthRun
		tr.BlinkCount = c.blinks
		tr.YawnCount = c.yawns
		tr.Candidates = candidates
		tr.Decided = decided
		tr.Smoothed = smoothed
		tr.Result = result
		c.tracer(tr)
	}
	return result
}

// maybeResetCounters clears blink/yawn counters once the reset period has elapsed
func (c *Classifier) maybeResetCounters(now time.Time) bool {
	if now.Sub(c.lastReset) <= c.cfg.CounterResetPeriod {
		return false
	}
	c.blinks = 0
	c.yawns = 0
	c.lastReset = now
	return true
}

// eyesClosed prefers eyelid probabilities when both eyes are reported
func (c *Classifier) eyesClosed(m Measurement) (bool, EyeSignal) {
	if prob, ok := m.EyeOpenProb(); ok {
		return prob < c.cfg.EyeOpenProbThreshold, EyeSignalProbability
	}
	return m.EAR < c.cfg.closedEARThreshold(), EyeSignalEAR
}

func (c *Classifier) eyeStage(m Measurement, tr *Trace) Candidate {
	cand := Candidate{Stage: StageEyeClosure}
	closed, signal := c.eyesClosed(m)
	tr.EyeSignal = signal
	tr.EyesClosed = closed

	if !closed {
		// A blink is counted on the closed -> open edge of a long enough run
		if c.eyeRun >= c.cfg.EARConsecutiveFrames {
			c.blinks++
		}
		c.eyeRun = 0
		return cand
	}

	c.eyeRun++
	if c.eyeRun >= c.cfg.EARConsecutiveFrames {
		cand.Fired = true
		cand.Level = MildFatigue
		cand.Confidence = c.cfg.EyeClosureConfidence
	}
	return cand
}

func (c *Classifier) mouthStage(m Measurement, tr *Trace) Candidate {
	cand := Candidate{Stage: StageMouthOpening}
	open := m.MAR > c.cfg.MARThreshold
	tr.MouthOpen = open

	if !open {
		c.mouthRun = 0
		c.yawnCounted = false
		return cand
	}

	c.mouthRun++
	if c.mouthRun >= c.cfg.MARConsecutiveFrames {
		if c.cfg.CountYawnPerFrame || !c.yawnCounted {
			c.yawns++
			c.yawnCounted = true
		}
	}
	if float64(c.mouthRun) >= c.cfg.sustainedMouthFrames() {
		cand.Fired = true
		cand.Level = ModerateFatigue
		cand.Confidence = c.cfg.MouthOpeningConfidence
		cand.Spray = true
	}
	return cand
}

// indicators lists the weak signals that hold on this frame
func (c *Classifier) indicators(m Measurement) []Indicator {
	var out []Indicator
	if m.EAR < c.cfg.EARThreshold*c.cfg.MultiEARMultiplier {
		out = append(out, IndicatorLowEAR)
	}
	if m.MAR > c.cfg.MARThreshold*c.cfg.MultiMARMultiplier {
		out = append(out, IndicatorHighMAR)
	}
	if c.cfg.ModerateTiltSignificant(m.Tilts()) {
		out = append(out, IndicatorHeadTilt)
	}
	if c.blinks > c.cfg.MultiBlinkThreshold {
		out = append(out, IndicatorBlinkRate)
	}
	if c.yawns > c.cfg.MultiYawnThreshold {
		out = append(out, IndicatorYawnRate)
	}
	return out
}

func (c *Classifier) multiIndicatorStage(m Measurement, tr *Trace) Candidate {
	cand := Candidate{Stage: StageMultiIndicator}
	tr.Indicators = c.indicators(m)
	if len(tr.Indicators) >= c.cfg.MultiIndicatorMinIndicators {
		cand.Fired = true
		cand.Level = ModerateFatigue
		cand.Spray = true
	}
	return cand
}

func (c *Classifier) severeStage(m Measurement) Candidate {
	cand := Candidate{Stage: StageSevere}
	counts := c.yawns > c.cfg.SevereYawnThreshold || c.blinks > c.cfg.SevereBlinkThreshold
	if counts && c.cfg.SevereTiltSignificant(m.HeadTiltX, m.HeadTiltY, m.HeadTiltZ) {
		cand.Fired = true
		cand.Level = SevereFatigue
		cand.Spray = true
	}
	return cand
}

// reduceCandidates combines stage proposals: most severe fired level wins
// (SevereFatigue therefore always overrides), spray flags are ORed.
func reduceCandidates(cands []Candidate) (Level, bool) {
	level, spray := Alert, false
	for _, cand := range cands {
		if !cand.Fired {
			continue
		}
		level = maxLevel(level, cand.Level)
		spray = spray || cand.Spray
	}
	return level, spray
}

// Reset re-initializes the session as if newly constructed
func (c *Classifier) Reset() {
	c.eyeRun = 0
	c.mouthRun = 0
	c.yawnCounted = false
	c.blinks = 0
	c.yawns = 0
	c.frames = 0
	c.smooth.reset()
	c.ears.clear()
	c.lastReset = c.now()
}

// State returns a snapshot of the session counters
func (c *Classifier) State() SessionState {
	return SessionState{
		EyeClosureRunLength: c.eyeRun,
		MouthOpenRunLength:  c.mouthRun,
		BlinkCount:          c.blinks,
		YawnCount:           c.yawns,
		LastResetTime:       c.lastReset,
		LevelHistory:        c.smooth.window.levels(),
		LastStableLevel:     c.smooth.stable,
		Frames:              c.frames,
	}
}

// EARStats summarizes the bounded EAR history
func (c *Classifier) EARStats() EARStats {
	return c.ears.stats()
}
