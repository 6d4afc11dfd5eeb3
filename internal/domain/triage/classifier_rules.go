package triage

import (
	"context"
	"math"
)

// RuleClassifier classifies vitals with fixed clinical thresholds. It is
// meant for development and as a stand-in when no model server is
// configured.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify returns High for two or more critical indicators or hypoxia,
// Medium for one indicator or advanced age, and Low otherwise. Confidence
// rises with the number of agreeing signals.
func (RuleClassifier) Classify(_ context.Context, v VitalSigns) (RiskLevel, float64, error) {
	n := CriticalCount(v)
	switch {
	case n >= 2 || v.OxygenSaturation < 90:
		return RiskHigh, math.Min(0.75+0.05*float64(n), 0.99), nil
	case n == 1:
		return RiskMedium, 0.75, nil
	case v.Age >= 70:
		return RiskMedium, 0.65, nil
	default:
		return RiskLow, 0.85, nil
	}
}
