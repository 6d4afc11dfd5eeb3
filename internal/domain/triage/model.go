package triage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownRiskLevel      = errors.New("unknown risk level")
	ErrInvalidVitals         = errors.New("invalid vital signs")
	ErrInvalidOutcome        = errors.New("invalid feedback outcome")
	ErrEmptyQueue            = errors.New("no patients available")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
)

// RiskLevel is the coarse urgency class assigned by the classifier.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
)

// RiskLevels lists every level from most to least urgent.
var RiskLevels = []RiskLevel{RiskHigh, RiskMedium, RiskLow}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return RiskHigh, nil
	case "medium":
		return RiskMedium, nil
	case "low":
		return RiskLow, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRiskLevel, s)
}

func (r RiskLevel) String() string {
	switch r {
	case RiskHigh:
		return "High"
	case RiskMedium:
		return "Medium"
	case RiskLow:
		return "Low"
	}
	return "Unknown"
}

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

func (r RiskLevel) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRiskLevel, int(r))
	}
	return json.Marshal(r.String())
}

func (r *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	lvl, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = lvl
	return nil
}

// VitalSigns is the measurement set captured at triage. Temperature is in
// degrees Celsius, weight in kilograms and height in metres.
type VitalSigns struct {
	HeartRate              float64 `json:"heart_rate"`
	RespiratoryRate        float64 `json:"respiratory_rate"`
	BodyTemperature        float64 `json:"body_temperature"`
	OxygenSaturation       float64 `json:"oxygen_saturation"`
	SystolicBloodPressure  float64 `json:"systolic_blood_pressure"`
	DiastolicBloodPressure float64 `json:"diastolic_blood_pressure"`
	Age                    float64 `json:"age"`
	Gender                 int     `json:"gender"`
	Weight                 float64 `json:"weight"`
	Height                 float64 `json:"height"`
	DerivedHRV             float64 `json:"derived_hrv"`
	DerivedPulsePressure   float64 `json:"derived_pulse_pressure"`
	DerivedBMI             float64 `json:"derived_bmi"`
	DerivedMAP             float64 `json:"derived_map"`
}

type vitalRange struct {
	name     string
	value    float64
	min, max float64
}

// Validate checks every measurement against physiologically plausible bounds.
func (v VitalSigns) Validate() error {
	ranges := []vitalRange{
		{"heart_rate", v.HeartRate, 20, 250},
		{"respiratory_rate", v.RespiratoryRate, 4, 60},
		{"body_temperature", v.BodyTemperature, 25, 45},
		{"oxygen_saturation", v.OxygenSaturation, 50, 100},
		{"systolic_blood_pressure", v.SystolicBloodPressure, 50, 260},
		{"diastolic_blood_pressure", v.DiastolicBloodPressure, 20, 160},
		{"age", v.Age, 0, 120},
		{"weight", v.Weight, 1, 400},
		{"height", v.Height, 0.3, 2.5},
	}
	for _, r := range ranges {
		if math.IsNaN(r.value) || r.value < r.min || r.value > r.max {
			return fmt.Errorf("%w: %s must be between %g and %g, got %g", ErrInvalidVitals, r.name, r.min, r.max, r.value)
		}
	}
	if v.Gender != 0 && v.Gender != 1 {
		return fmt.Errorf("%w: gender must be 0 or 1, got %d", ErrInvalidVitals, v.Gender)
	}
	derived := map[string]float64{
		"derived_hrv":            v.DerivedHRV,
		"derived_pulse_pressure": v.DerivedPulsePressure,
		"derived_bmi":            v.DerivedBMI,
		"derived_map":            v.DerivedMAP,
	}
	for name, val := range derived {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidVitals, name)
		}
	}
	return nil
}

// Assessment is the classifier's verdict on one set of vitals.
type Assessment struct {
	RiskLevel  RiskLevel  `json:"risk_level"`
	Confidence float64    `json:"confidence"`
	Vitals     VitalSigns `json:"vitals"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewAssessment clamps confidence into [0,1].
func NewAssessment(level RiskLevel, confidence float64, vitals VitalSigns, createdAt time.Time) Assessment {
	return Assessment{
		RiskLevel:  level,
		Confidence: clamp01(confidence),
		Vitals:     vitals,
		CreatedAt:  createdAt,
	}
}

// QueueEntry is one admitted patient. Entries are owned by the Queue and
// handed out only as copies.
type QueueEntry struct {
	ID                   uuid.UUID  `json:"patient_id"`
	Assessment           Assessment `json:"assessment"`
	PriorityScore        float64    `json:"priority_score"`
	QueuePosition        int        `json:"queue_position"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	RLState              *string    `json:"rl_state,omitempty"`
	RLAction             *string    `json:"rl_action,omitempty"`
	RLAdjustment         float64    `json:"rl_adjustment"`

	seq   int64
	delay int
}

// FinalPriority is the score used for ordering.
func (e *QueueEntry) FinalPriority() float64 {
	if e.Assessment.RiskLevel == RiskLow {
		return e.PriorityScore + e.RLAdjustment
	}
	return e.PriorityScore
}

// Outcome is the observed result of serving a patient.
type Outcome struct {
	ActualWaitMinutes   int     `json:"actual_wait_minutes"`
	Satisfaction        float64 `json:"satisfaction_score"`
	ResourceUtilization float64 `json:"resource_utilization"`
}

// Normalize rejects negative waits and clamps the ratios into [0,1].
func (o Outcome) Normalize() (Outcome, error) {
	if o.ActualWaitMinutes < 0 {
		return o, fmt.Errorf("%w: actual_wait_minutes must be >= 0", ErrInvalidOutcome)
	}
	if math.IsNaN(o.Satisfaction) || math.IsNaN(o.ResourceUtilization) {
		return o, fmt.Errorf("%w: scores must be numbers", ErrInvalidOutcome)
	}
	o.Satisfaction = clamp01(o.Satisfaction)
	o.ResourceUtilization = clamp01(o.ResourceUtilization)
	return o, nil
}

// FeedbackRecord maps to the feedback_record table.
type FeedbackRecord struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	ActualWaitMinutes   int       `db:"actual_wait_minutes" json:"actual_wait_minutes"`
	Satisfaction        float64   `db:"satisfaction" json:"satisfaction_score"`
	ResourceUtilization float64   `db:"resource_utilization" json:"resource_utilization"`
	Applied             bool      `db:"applied" json:"applied"`
	RecordedAt          time.Time `db:"recorded_at" json:"recorded_at"`
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
