package fatigue

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLevel_Ordering(t *testing.T) {
	if !(Alert < MildFatigue && MildFatigue < ModerateFatigue && ModerateFatigue < SevereFatigue) {
		t.Fatal("levels must be ordered alert < mild < moderate < severe")
	}
	if !SevereFatigue.AtLeast(ModerateFatigue) || MildFatigue.AtLeast(ModerateFatigue) {
		t.Error("AtLeast does not follow severity order")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"alert", Alert},
		{"mild_fatigue", MildFatigue},
		{" Moderate_Fatigue ", ModerateFatigue},
		{"severe", SevereFatigue},
		{"mild", MildFatigue},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLevel("sleepy"); err == nil {
		t.Error("ParseLevel(sleepy) should fail")
	}
}

func TestLevel_String(t *testing.T) {
	if got := ModerateFatigue.String(); got != "moderate_fatigue" {
		t.Errorf("String() = %q", got)
	}
	if got := Level(9).String(); got != "level(9)" {
		t.Errorf("String() of invalid level = %q", got)
	}
}

func TestDetectionResult_JSONLevelName(t *testing.T) {
	data, err := json.Marshal(DetectionResult{Level: SevereFatigue, Confidence: 0.7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"level":"severe_fatigue"`) {
		t.Errorf("level not encoded by name: %s", data)
	}

	var back DetectionResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Level != SevereFatigue {
		t.Errorf("Level = %v, want severe_fatigue", back.Level)
	}
}
