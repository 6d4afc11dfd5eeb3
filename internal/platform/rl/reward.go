package rl

// Outcome is the feedback observed after a decision.
type Outcome struct {
	WaitMinutes  int
	Satisfaction float64
	Utilization  float64
}

// Reward shapes an outcome into a scalar. Long waits are penalized in steps,
// satisfaction and utilization are rewarded linearly, and moderate delays
// that still left the patient satisfied earn a bonus.
func Reward(action Action, o Outcome) float64 {
	var r float64
	switch {
	case o.WaitMinutes > 120:
		r -= 10
	case o.WaitMinutes > 60:
		r -= 5
	case o.WaitMinutes > 30:
		r -= 2
	}

	r += o.Satisfaction * 10
	r += o.Utilization * 5

	switch {
	case (action == ActionDelay30 || action == ActionDelay60) && o.Satisfaction > 0.7:
		r += 3
	case action == ActionImmediate && o.Utilization < 0.3:
		r -= 2
	}
	return r
}
