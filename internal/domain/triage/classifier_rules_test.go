package triage

import (
	"context"
	"math"
	"testing"
)

func TestRuleClassifier_Classify(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*VitalSigns)
		level      RiskLevel
		confidence float64
	}{
		{"stable adult", func(*VitalSigns) {}, RiskLow, 0.85},
		{"elderly", func(v *VitalSigns) { v.Age = 75 }, RiskMedium, 0.65},
		{"one indicator", func(v *VitalSigns) { v.HeartRate = 130 }, RiskMedium, 0.75},
		{"two indicators", func(v *VitalSigns) {
			v.HeartRate = 130
			v.RespiratoryRate = 30
		}, RiskHigh, 0.85},
		{"hypoxia alone", func(v *VitalSigns) { v.OxygenSaturation = 85 }, RiskHigh, 0.80},
		{"everything abnormal", func(v *VitalSigns) {
			v.HeartRate = 140
			v.RespiratoryRate = 30
			v.BodyTemperature = 40
			v.OxygenSaturation = 80
			v.SystolicBloodPressure = 80
		}, RiskHigh, 0.99},
	}
	r := NewRuleClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := normalVitals()
			tt.mutate(&v)
			level, conf, err := r.Classify(context.Background(), v)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if level != tt.level {
				t.Errorf("expected %s, got %s", tt.level, level)
			}
			if math.Abs(conf-tt.confidence) > 1e-9 {
				t.Errorf("expected confidence %g, got %g", tt.confidence, conf)
			}
		})
	}
}
