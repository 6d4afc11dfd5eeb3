package rl

import (
	"math"
	"testing"
)

func TestReward(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		out    Outcome
		want   float64
	}{
		{"short wait", ActionDelay15, Outcome{WaitMinutes: 10, Satisfaction: 0.5, Utilization: 0.5}, 7.5},
		{"over thirty", ActionDelay15, Outcome{WaitMinutes: 45, Satisfaction: 0.5, Utilization: 0.5}, 5.5},
		{"over an hour", ActionDelay15, Outcome{WaitMinutes: 61, Satisfaction: 0.5, Utilization: 0.5}, 2.5},
		{"over two hours", ActionDelay15, Outcome{WaitMinutes: 121, Satisfaction: 0.5, Utilization: 0.5}, -2.5},
		{"satisfied moderate delay", ActionDelay30, Outcome{WaitMinutes: 20, Satisfaction: 0.8, Utilization: 0.6}, 14},
		{"satisfied sixty delay", ActionDelay60, Outcome{WaitMinutes: 50, Satisfaction: 0.9, Utilization: 0}, 10},
		{"bonus needs strict satisfaction", ActionDelay30, Outcome{WaitMinutes: 0, Satisfaction: 0.7, Utilization: 0}, 7},
		{"immediate with idle resources", ActionImmediate, Outcome{WaitMinutes: 0, Satisfaction: 1, Utilization: 0.2}, 9},
		{"immediate with busy resources", ActionImmediate, Outcome{WaitMinutes: 0, Satisfaction: 1, Utilization: 0.3}, 11.5},
		{"delay 120 gets no bonus", ActionDelay120, Outcome{WaitMinutes: 0, Satisfaction: 1, Utilization: 1}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reward(tt.action, tt.out); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %g, want %g", got, tt.want)
			}
		})
	}
}
