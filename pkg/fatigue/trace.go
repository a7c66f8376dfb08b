package fatigue

import "time"

// Stage names one step of the per-frame decision pipeline
type Stage string

const (
	StageEyeClosure     Stage = "eye_closure"
	StageMouthOpening   Stage = "mouth_opening"
	StageMultiIndicator Stage = "multi_indicator"
	StageSevere         Stage = "severe"
)

// Candidate is the proposal of one pipeline stage. Stages never
// overwrite each other; the reducer takes the most severe fired level
// and ORs the spray flags.
type Candidate struct {
	Stage      Stage   `json:"stage"`
	Fired      bool    `json:"fired"`
	Level      Level   `json:"level"`
	Confidence float64 `json:"confidence,omitempty"` // Provisional, superseded by the confidence term
	Spray      bool    `json:"spray"`
}

// Indicator names one weak signal of the multi-indicator vote
type Indicator string

const (
	IndicatorLowEAR    Indicator = "low_ear"
	IndicatorHighMAR   Indicator = "high_mar"
	IndicatorHeadTilt  Indicator = "head_tilt"
	IndicatorBlinkRate Indicator = "blink_count"
	IndicatorYawnRate  Indicator = "yawn_count"
)

// numIndicators is the number of signals in the vote
const numIndicators = 5

// EyeSignal says which input decided eye closure on a frame
type EyeSignal string

const (
	EyeSignalProbability EyeSignal = "eye_open_prob"
	EyeSignalEAR         EyeSignal = "ear"
)

// Trace is the full diagnostic record of one processed frame.
// It is handed to the Tracer, if any, after the result is built.
type Trace struct {
	Frame         uint64      `json:"frame"`
	Measurement   Measurement `json:"-"`
	CountersReset bool        `json:"counters_reset"`

	EyeSignal     EyeSignal `json:"eye_signal"`
	EyesClosed    bool      `json:"eyes_closed"`
	EyeClosureRun int       `json:"eye_closure_run"`
	MouthOpen     bool      `json:"mouth_open"`
	MouthOpenRun  int       `json:"mouth_open_run"`
	BlinkCount    int       `json:"blink_count"`
	YawnCount     int       `json:"yawn_count"`

	Indicators []Indicator `json:"indicators"`
	Candidates []Candidate `json:"candidates"`
	Decided    Level       `json:"decided"`
	Smoothed   bool        `json:"smoothed"`

	Result DetectionResult `json:"result"`
}

// Tracer receives a Trace for every processed frame.
// It runs synchronously inside ProcessFrame and must not call back into the classifier.
type Tracer func(Trace)

// Option configures a Classifier
type Option func(*Classifier)

// WithClock replaces time.Now, mainly for tests and replays
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracer installs a per-frame diagnostic callback
func WithTracer(t Tracer) Option {
	return func(c *Classifier) {
		c.tracer = t
	}
}
