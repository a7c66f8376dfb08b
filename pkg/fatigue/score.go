package fatigue

// Confidence returns the fresh per-frame confidence in [0,1].
// It looks only at the raw signals of this frame and ignores the level decision.
func (c Config) Confidence(m Measurement) float64 {
	conf := 0.0
	if m.EAR < c.EARThreshold*c.EARConfidenceMultiplier {
		conf += c.EARConfidenceWeight
	}
	if m.MAR > c.MARThreshold*c.MARConfidenceMultiplier {
		conf += c.MARConfidenceWeight
	}
	if c.confidenceTiltSignificant(m.Tilts()) {
		conf += c.HeadTiltConfidenceWeight
	}
	return clamp(conf, 0, 1)
}

// DrowsinessScore is the weighted telemetry score. With weights summing
// to 1 it ranges over [0, ScoreScale]. Level decisions never read it.
func (c Config) DrowsinessScore(blinks, yawns int, m Measurement) float64 {
	blinkTerm := clamp(float64(blinks)/c.MaxBlinkNorm, 0, 1) * c.BlinkWeight
	yawnTerm := clamp(float64(yawns)/c.MaxYawnNorm, 0, 1) * c.YawnWeight
	tiltTerm := clamp(m.maxAbsTilt()/c.HeadTiltThreshold, 0, 1) * c.HeadTiltWeight
	return (blinkTerm + yawnTerm + tiltTerm) * c.ScoreScale
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
