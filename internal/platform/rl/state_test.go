package rl

import "testing"

func TestStateKey(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"typical", State{Risk: "low", Confidence: 0.85, QueueLength: 3, HighRiskCount: 1, Hour: 9}, "low_8_3_1_morning"},
		{"caps queue and high counts", State{Risk: "low", Confidence: 0.5, QueueLength: 42, HighRiskCount: 9, Hour: 13}, "low_5_10_5_afternoon"},
		{"full confidence", State{Risk: "Low", Confidence: 1, QueueLength: 0, HighRiskCount: 0, Hour: 23}, "low_10_0_0_evening"},
		{"negative inputs", State{Risk: "low", Confidence: -0.2, QueueLength: -1, HighRiskCount: -3, Hour: 2}, "low_0_0_0_evening"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Key(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeBucket(t *testing.T) {
	tests := map[int]string{
		0: "evening", 5: "evening", 6: "morning", 11: "morning",
		12: "afternoon", 17: "afternoon", 18: "evening", 23: "evening",
	}
	for hour, want := range tests {
		if got := TimeBucket(hour); got != want {
			t.Errorf("TimeBucket(%d) = %s, want %s", hour, got, want)
		}
	}
}

func TestConfidenceBucket(t *testing.T) {
	tests := map[float64]int{0: 0, 0.09: 0, 0.1: 1, 0.75: 7, 0.99: 9, 1: 10, 1.5: 10}
	for c, want := range tests {
		if got := ConfidenceBucket(c); got != want {
			t.Errorf("ConfidenceBucket(%g) = %d, want %d", c, got, want)
		}
	}
}
