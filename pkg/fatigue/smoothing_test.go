package fatigue

import (
	"reflect"
	"testing"
)

func TestLevelWindow_EvictsOldest(t *testing.T) {
	w := newLevelWindow(3)

	for _, l := range []Level{Alert, MildFatigue, ModerateFatigue, SevereFatigue} {
		w.push(l)
	}

	if !w.full() || w.len() != 3 {
		t.Fatalf("window len = %d, want 3 and full", w.len())
	}
	want := []Level{MildFatigue, ModerateFatigue, SevereFatigue}
	if got := w.levels(); !reflect.DeepEqual(got, want) {
		t.Errorf("levels = %v, want %v", got, want)
	}
}

func TestLevelWindow_ModeTieGoesToSevere(t *testing.T) {
	w := newLevelWindow(4)
	for _, l := range []Level{ModerateFatigue, Alert, ModerateFatigue, Alert} {
		w.push(l)
	}

	level, count := w.mode()
	if level != ModerateFatigue || count != 2 {
		t.Errorf("mode = (%v, %d), want (moderate_fatigue, 2)", level, count)
	}
}

func TestSmoother(t *testing.T) {
	tests := []struct {
		name       string
		raw        []Level
		want       []Level // reported level per frame
		wantStable Level
	}{
		{
			name:       "majority of three",
			raw:        []Level{MildFatigue, MildFatigue, MildFatigue, Alert, Alert},
			want:       []Level{MildFatigue, MildFatigue, MildFatigue, Alert, MildFatigue},
			wantStable: MildFatigue,
		},
		{
			name:       "no majority keeps the initial stable level",
			raw:        []Level{MildFatigue, ModerateFatigue, SevereFatigue, Alert, MildFatigue},
			want:       []Level{MildFatigue, ModerateFatigue, SevereFatigue, Alert, Alert},
			wantStable: Alert,
		},
		{
			name: "stable level sticks through a mixed window",
			raw: []Level{
				SevereFatigue, SevereFatigue, SevereFatigue, Alert, Alert,
				MildFatigue, ModerateFatigue,
			},
			want: []Level{
				SevereFatigue, SevereFatigue, SevereFatigue, Alert, SevereFatigue,
				SevereFatigue, SevereFatigue,
			},
			wantStable: SevereFatigue,
		},
		{
			name: "recovers once alert holds the majority",
			raw: []Level{
				ModerateFatigue, ModerateFatigue, ModerateFatigue, ModerateFatigue, ModerateFatigue,
				Alert, Alert, Alert,
			},
			want: []Level{
				ModerateFatigue, ModerateFatigue, ModerateFatigue, ModerateFatigue, ModerateFatigue,
				ModerateFatigue, ModerateFatigue, Alert,
			},
			wantStable: Alert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSmoother(5, 3)
			for i, raw := range tt.raw {
				got, _ := s.update(raw)
				if got != tt.want[i] {
					t.Errorf("frame %d: got %v, want %v", i+1, got, tt.want[i])
				}
			}
			if s.stable != tt.wantStable {
				t.Errorf("stable = %v, want %v", s.stable, tt.wantStable)
			}
		})
	}
}

func TestSmoother_Reset(t *testing.T) {
	s := newSmoother(5, 3)
	for i := 0; i < 5; i++ {
		s.update(SevereFatigue)
	}

	s.reset()

	if s.stable != Alert {
		t.Errorf("stable = %v, want alert", s.stable)
	}
	if s.window.len() != 0 {
		t.Errorf("window len = %d, want 0", s.window.len())
	}
	if got, smoothed := s.update(MildFatigue); got != MildFatigue || smoothed {
		t.Errorf("first update after reset = (%v, %v), want raw mild", got, smoothed)
	}
}
