package fatigue

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every threshold used by the classifier.
// Nothing in the decision logic uses an inline constant; if a number
// matters it lives here.
type Config struct {
	// Eye closure
	EARThreshold          float64 `yaml:"ear_threshold" json:"ear_threshold"`                     // Nominal open/closed EAR boundary
	EARFallbackAdjustment float64 `yaml:"ear_fallback_adjustment" json:"ear_fallback_adjustment"` // Subtracted from EARThreshold when classifying from EAR alone
	EARConsecutiveFrames  int     `yaml:"ear_consecutive_frames" json:"ear_consecutive_frames"`   // Closed frames before MildFatigue / a blink
	EyeOpenProbThreshold  float64 `yaml:"eye_open_prob_threshold" json:"eye_open_prob_threshold"` // Mean eyelid-open probability below this = closed
	EyeClosureConfidence  float64 `yaml:"eye_closure_confidence" json:"eye_closure_confidence"`   // Provisional confidence of the eye stage (trace only)

	// Mouth opening / yawns
	MARThreshold                    float64 `yaml:"mar_threshold" json:"mar_threshold"`
	MARConsecutiveFrames            int     `yaml:"mar_consecutive_frames" json:"mar_consecutive_frames"`                         // Open frames before a yawn is counted
	SustainedMouthOpeningMultiplier float64 `yaml:"sustained_mouth_opening_multiplier" json:"sustained_mouth_opening_multiplier"` // x MARConsecutiveFrames = sustained opening
	MouthOpeningConfidence          float64 `yaml:"mouth_opening_confidence" json:"mouth_opening_confidence"`                     // Provisional confidence of the mouth stage (trace only)
	CountYawnPerFrame               bool    `yaml:"count_yawn_per_frame" json:"count_yawn_per_frame"`                             // Legacy policy: count every frame past the threshold

	// Head tilt (degrees). X/Y use HeadTiltThreshold x multiplier,
	// Z (ear to shoulder) uses the lower shoulder multipliers.
	HeadTiltThreshold            float64 `yaml:"head_tilt_threshold" json:"head_tilt_threshold"`
	MultiHeadTiltMultiplier      float64 `yaml:"multi_head_tilt_multiplier" json:"multi_head_tilt_multiplier"`
	SevereHeadTiltMultiplier     float64 `yaml:"severe_head_tilt_multiplier" json:"severe_head_tilt_multiplier"`
	HeadTiltConfidenceMultiplier float64 `yaml:"head_tilt_confidence_multiplier" json:"head_tilt_confidence_multiplier"`
	ShoulderTiltMultiplier       float64 `yaml:"shoulder_tilt_multiplier" json:"shoulder_tilt_multiplier"`               // Z axis, moderate + confidence
	SevereShoulderTiltMultiplier float64 `yaml:"severe_shoulder_tilt_multiplier" json:"severe_shoulder_tilt_multiplier"` // Z axis, severe

	// Confidence
	EARConfidenceMultiplier  float64 `yaml:"ear_confidence_multiplier" json:"ear_confidence_multiplier"`
	MARConfidenceMultiplier  float64 `yaml:"mar_confidence_multiplier" json:"mar_confidence_multiplier"`
	EARConfidenceWeight      float64 `yaml:"ear_confidence_weight" json:"ear_confidence_weight"`
	MARConfidenceWeight      float64 `yaml:"mar_confidence_weight" json:"mar_confidence_weight"`
	HeadTiltConfidenceWeight float64 `yaml:"head_tilt_confidence_weight" json:"head_tilt_confidence_weight"`

	// Drowsiness score
	BlinkWeight    float64 `yaml:"blink_weight" json:"blink_weight"`
	YawnWeight     float64 `yaml:"yawn_weight" json:"yawn_weight"`
	HeadTiltWeight float64 `yaml:"head_tilt_weight" json:"head_tilt_weight"`
	MaxBlinkNorm   float64 `yaml:"max_blink_norm" json:"max_blink_norm"` // Blink count that saturates the blink term
	MaxYawnNorm    float64 `yaml:"max_yawn_norm" json:"max_yawn_norm"`   // Yawn count that saturates the yawn term
	ScoreScale     float64 `yaml:"score_scale" json:"score_scale"`       // Score range when weights sum to 1

	// Multi-indicator escalation (looser thresholds)
	MultiEARMultiplier          float64 `yaml:"multi_ear_multiplier" json:"multi_ear_multiplier"`
	MultiMARMultiplier          float64 `yaml:"multi_mar_multiplier" json:"multi_mar_multiplier"`
	MultiBlinkThreshold         int     `yaml:"multi_blink_threshold" json:"multi_blink_threshold"`
	MultiYawnThreshold          int     `yaml:"multi_yawn_threshold" json:"multi_yawn_threshold"`
	MultiIndicatorMinIndicators int     `yaml:"multi_indicator_min_indicators" json:"multi_indicator_min_indicators"`

	// Severe escalation
	SevereYawnThreshold  int `yaml:"severe_yawn_threshold" json:"severe_yawn_threshold"`
	SevereBlinkThreshold int `yaml:"severe_blink_threshold" json:"severe_blink_threshold"`

	// Temporal behaviour
	CounterResetPeriod time.Duration `yaml:"counter_reset_period" json:"counter_reset_period"` // Blink/yawn counters cleared after this
	SmoothingWindow    int           `yaml:"smoothing_window" json:"smoothing_window"`         // Decided levels kept for the vote
	SmoothingMajority  int           `yaml:"smoothing_majority" json:"smoothing_majority"`     // Votes needed to change the stable level
	EARHistorySize     int           `yaml:"ear_history_size" json:"ear_history_size"`         // Telemetry only
}

// DefaultConfig returns the thresholds tuned for a dashboard camera at ~30 fps
func DefaultConfig() Config {
	return Config{
		// Eyes
		EARThreshold:          0.25,
		EARFallbackAdjustment: 0.03, // EAR-only closure below 0.22
		EARConsecutiveFrames:  3,
		EyeOpenProbThreshold:  0.3,
		EyeClosureConfidence:  0.7,

		// Mouth
		MARThreshold:                    0.6,
		MARConsecutiveFrames:            10,
		SustainedMouthOpeningMultiplier: 2.0, // 20 frames ≈ 0.7s
		MouthOpeningConfidence:          0.8,
		CountYawnPerFrame:               false,

		// Head tilt
		HeadTiltThreshold:            20.0,
		MultiHeadTiltMultiplier:      0.75, // 15°
		SevereHeadTiltMultiplier:     1.25, // 25°
		HeadTiltConfidenceMultiplier: 1.0,  // 20°
		ShoulderTiltMultiplier:       0.6,  // 12° on Z
		SevereShoulderTiltMultiplier: 0.8,  // 16° on Z

		// Confidence
		EARConfidenceMultiplier:  0.9,
		MARConfidenceMultiplier:  1.1,
		EARConfidenceWeight:      0.3,
		MARConfidenceWeight:      0.3,
		HeadTiltConfidenceWeight: 0.4,

		// Score
		BlinkWeight:    0.4,
		YawnWeight:     0.35,
		HeadTiltWeight: 0.25,
		MaxBlinkNorm:   30,
		MaxYawnNorm:    5,
		ScoreScale:     100,

		// Multi-indicator
		MultiEARMultiplier:          1.1,
		MultiMARMultiplier:          0.9,
		MultiBlinkThreshold:         15,
		MultiYawnThreshold:          2,
		MultiIndicatorMinIndicators: 2,

		// Severe
		SevereYawnThreshold:  3,
		SevereBlinkThreshold: 25,

		// Temporal
		CounterResetPeriod: 60 * time.Second,
		SmoothingWindow:    5,
		SmoothingMajority:  3,
		EARHistorySize:     100,
	}
}

// SensitiveConfig escalates earlier. Useful for long night shifts
// where a missed episode costs more than a false alarm.
func SensitiveConfig() Config {
	cfg := DefaultConfig()
	cfg.EARThreshold = 0.27
	cfg.MARConsecutiveFrames = 8
	cfg.HeadTiltThreshold = 15.0
	cfg.MultiBlinkThreshold = 10
	cfg.MultiYawnThreshold = 1
	cfg.SevereYawnThreshold = 2
	cfg.SevereBlinkThreshold = 18
	return cfg
}

// RelaxedConfig tolerates more movement before escalating.
// Useful for passengers or subjects who talk a lot.
func RelaxedConfig() Config {
	cfg := DefaultConfig()
	cfg.EARConsecutiveFrames = 5
	cfg.MARThreshold = 0.7
	cfg.MARConsecutiveFrames = 15
	cfg.HeadTiltThreshold = 25.0
	cfg.MultiIndicatorMinIndicators = 3
	cfg.SmoothingWindow = 7
	cfg.SmoothingMajority = 4
	return cfg
}

// Preset returns a named configuration preset: "default", "sensitive" or "relaxed"
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "sensitive":
		return SensitiveConfig(), nil
	case "relaxed":
		return RelaxedConfig(), nil
	}
	return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
}

// LoadConfig reads a YAML file on top of DefaultConfig.
// Keys missing from the file keep their default value.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read thresholds file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML thresholds on top of DefaultConfig and validates the result
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse thresholds: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// weightTolerance is the allowed drift of the score weights from 1.0
const weightTolerance = 1e-3

// Validate checks that every threshold is usable
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"ear_threshold", c.EARThreshold},
		{"mar_threshold", c.MARThreshold},
		{"eye_open_prob_threshold", c.EyeOpenProbThreshold},
		{"sustained_mouth_opening_multiplier", c.SustainedMouthOpeningMultiplier},
		{"head_tilt_threshold", c.HeadTiltThreshold},
		{"multi_head_tilt_multiplier", c.MultiHeadTiltMultiplier},
		{"severe_head_tilt_multiplier", c.SevereHeadTiltMultiplier},
		{"head_tilt_confidence_multiplier", c.HeadTiltConfidenceMultiplier},
		{"shoulder_tilt_multiplier", c.ShoulderTiltMultiplier},
		{"severe_shoulder_tilt_multiplier", c.SevereShoulderTiltMultiplier},
		{"ear_confidence_multiplier", c.EARConfidenceMultiplier},
		{"mar_confidence_multiplier", c.MARConfidenceMultiplier},
		{"max_blink_norm", c.MaxBlinkNorm},
		{"max_yawn_norm", c.MaxYawnNorm},
		{"score_scale", c.ScoreScale},
		{"multi_ear_multiplier", c.MultiEARMultiplier},
		{"multi_mar_multiplier", c.MultiMARMultiplier},
	}
	for _, p := range positive {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidConfig, p.name, p.value)
		}
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"ear_fallback_adjustment", c.EARFallbackAdjustment},
		{"ear_confidence_weight", c.EARConfidenceWeight},
		{"mar_confidence_weight", c.MARConfidenceWeight},
		{"head_tilt_confidence_weight", c.HeadTiltConfidenceWeight},
		{"blink_weight", c.BlinkWeight},
		{"yawn_weight", c.YawnWeight},
		{"head_tilt_weight", c.HeadTiltWeight},
	}
	for _, p := range nonNegative {
		if p.value < 0 || math.IsNaN(p.value) {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidConfig, p.name, p.value)
		}
	}

	if c.EARFallbackAdjustment >= c.EARThreshold {
		return fmt.Errorf("%w: ear_fallback_adjustment (%v) must be below ear_threshold (%v)",
			ErrInvalidConfig, c.EARFallbackAdjustment, c.EARThreshold)
	}
	if c.EyeOpenProbThreshold > 1 {
		return fmt.Errorf("%w: eye_open_prob_threshold must be <= 1, got %v", ErrInvalidConfig, c.EyeOpenProbThreshold)
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"eye_closure_confidence", c.EyeClosureConfidence},
		{"mouth_opening_confidence", c.MouthOpeningConfidence},
	} {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %v", ErrInvalidConfig, p.name, p.value)
		}
	}

	if sum := c.BlinkWeight + c.YawnWeight + c.HeadTiltWeight; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: score weights must sum to 1, got %v", ErrInvalidConfig, sum)
	}

	counts := []struct {
		name  string
		value int
		min   int
	}{
		{"ear_consecutive_frames", c.EARConsecutiveFrames, 1},
		{"mar_consecutive_frames", c.MARConsecutiveFrames, 1},
		{"multi_blink_threshold", c.MultiBlinkThreshold, 0},
		{"multi_yawn_threshold", c.MultiYawnThreshold, 0},
		{"multi_indicator_min_indicators", c.MultiIndicatorMinIndicators, 1},
		{"severe_yawn_threshold", c.SevereYawnThreshold, 0},
		{"severe_blink_threshold", c.SevereBlinkThreshold, 0},
		{"smoothing_window", c.SmoothingWindow, 1},
		{"smoothing_majority", c.SmoothingMajority, 1},
		{"ear_history_size", c.EARHistorySize, 1},
	}
	for _, p := range counts {
		if p.value < p.min {
			return fmt.Errorf("%w: %s must be >= %d, got %d", ErrInvalidConfig, p.name, p.min, p.value)
		}
	}

	if c.MultiIndicatorMinIndicators > numIndicators {
		return fmt.Errorf("%w: multi_indicator_min_indicators must be <= %d, got %d",
			ErrInvalidConfig, numIndicators, c.MultiIndicatorMinIndicators)
	}
	if c.SmoothingMajority > c.SmoothingWindow {
		return fmt.Errorf("%w: smoothing_majority (%d) exceeds smoothing_window (%d)",
			ErrInvalidConfig, c.SmoothingMajority, c.SmoothingWindow)
	}
	if c.CounterResetPeriod <= 0 {
		return fmt.Errorf("%w: counter_reset_period must be > 0, got %v", ErrInvalidConfig, c.CounterResetPeriod)
	}
	return nil
}

// closedEARThreshold is the EAR below which eyes count as closed
// when no eyelid probabilities are available.
func (c Config) closedEARThreshold() float64 {
	return c.EARThreshold - c.EARFallbackAdjustment
}

// sustainedMouthFrames is the run length that counts as a sustained opening
func (c Config) sustainedMouthFrames() float64 {
	return float64(c.MARConsecutiveFrames) * c.SustainedMouthOpeningMultiplier
}
