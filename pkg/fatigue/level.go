package fatigue

import (
	"fmt"
	"strings"
)

// Level is the discrete fatigue classification. Levels are ordered:
// Alert < MildFatigue < ModerateFatigue < SevereFatigue.
type Level int

const (
	Alert Level = iota
	MildFatigue
	ModerateFatigue
	SevereFatigue
)

// numLevels is the number of defined levels
const numLevels = 4

var levelNames = [numLevels]string{
	"alert",
	"mild_fatigue",
	"moderate_fatigue",
	"severe_fatigue",
}

// String returns the snake_case name used in logs and on the wire
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the defined levels
func (l Level) Valid() bool {
	return l >= Alert && l <= SevereFatigue
}

// AtLeast reports whether l is as severe as other or more
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

// ParseLevel converts a level name back into a Level.
// Accepts the snake_case names plus the short forms "mild", "moderate", "severe".
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if name == n {
			return Level(i), nil
		}
	}
	switch name {
	case "mild":
		return MildFatigue, nil
	case "moderate":
		return ModerateFatigue, nil
	case "severe":
		return SevereFatigue, nil
	}
	return Alert, fmt.Errorf("unknown fatigue level %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid fatigue level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func maxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
