package triage

import (
	"math"
	"time"
)

// Scorer computes the deterministic clinical priority of an assessment. It
// holds no state and is safe for concurrent use.
type Scorer struct{}

func baseWeight(level RiskLevel) float64 {
	switch level {
	case RiskHigh:
		return 100
	case RiskMedium:
		return 50
	case RiskLow:
		return 10
	}
	return 0
}

// urgencyDivisor is the number of minutes after which a class gains one full
// unit of time urgency.
func urgencyDivisor(level RiskLevel) float64 {
	switch level {
	case RiskHigh:
		return 10
	case RiskMedium:
		return 30
	case RiskLow:
		return 120
	}
	return math.Inf(1)
}

// Score returns base × confidence × time_urgency × (1+age) × (1+critical).
func (s Scorer) Score(a Assessment, now time.Time) float64 {
	return baseWeight(a.RiskLevel) *
		clamp01(a.Confidence) *
		s.TimeUrgency(a, now) *
		(1 + s.AgeFactor(a.Vitals)) *
		(1 + s.CriticalFactor(a.Vitals))
}

// TimeUrgency grows linearly with time waited. Clock skew that puts now
// before creation counts as zero elapsed.
func (Scorer) TimeUrgency(a Assessment, now time.Time) float64 {
	elapsed := now.Sub(a.CreatedAt).Minutes()
	if elapsed < 0 {
		elapsed = 0
	}
	return 1 + elapsed/urgencyDivisor(a.RiskLevel)
}

func (Scorer) AgeFactor(v VitalSigns) float64 {
	if v.Age <= 0 {
		return 0
	}
	return math.Min(v.Age/80, 1.5)
}

// CriticalFactor sums the penalties of out-of-range vitals, capped at 1.0.
func (Scorer) CriticalFactor(v VitalSigns) float64 {
	var f float64
	if v.HeartRate < 50 || v.HeartRate > 120 {
		f += 0.3
	}
	if v.SystolicBloodPressure < 90 || v.SystolicBloodPressure > 180 {
		f += 0.4
	}
	if v.OxygenSaturation < 90 {
		f += 0.5
	}
	if v.BodyTemperature < 35 || v.BodyTemperature > 39 {
		f += 0.3
	}
	if v.RespiratoryRate < 12 || v.RespiratoryRate > 25 {
		f += 0.2
	}
	return math.Min(f, 1.0)
}

// CriticalCount is the number of vitals outside their safe range.
func CriticalCount(v VitalSigns) int {
	n := 0
	for _, out := range []bool{
		v.HeartRate < 50 || v.HeartRate > 120,
		v.SystolicBloodPressure < 90 || v.SystolicBloodPressure > 180,
		v.OxygenSaturation < 90,
		v.BodyTemperature < 35 || v.BodyTemperature > 39,
		v.RespiratoryRate < 12 || v.RespiratoryRate > 25,
	} {
		if out {
			n++
		}
	}
	return n
}
