package rl

import (
	"fmt"
	"math"
	"strings"
)

const (
	maxQueueLength   = 10
	maxHighRiskCount = 5
)

// State is the context in which a scheduling decision is made.
type State struct {
	Risk          string
	Confidence    float64
	QueueLength   int
	HighRiskCount int
	Hour          int
}

// Key discretizes the state into its table key, e.g. "low_7_3_1_morning".
func (s State) Key() string {
	return fmt.Sprintf("%s_%d_%d_%d_%s",
		strings.ToLower(s.Risk),
		ConfidenceBucket(s.Confidence),
		capInt(s.QueueLength, maxQueueLength),
		capInt(s.HighRiskCount, maxHighRiskCount),
		TimeBucket(s.Hour),
	)
}

// ConfidenceBucket maps [0,1] onto 0..10.
func ConfidenceBucket(c float64) int {
	if math.IsNaN(c) || c <= 0 {
		return 0
	}
	if c >= 1 {
		return 10
	}
	return int(math.Floor(c * 10))
}

func TimeBucket(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func capInt(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
