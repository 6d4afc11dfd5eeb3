// Package rl implements the tabular Q-learning layer that adjusts the
// scheduling of low-acuity patients. It knows nothing about queues: callers
// build a State, ask the Agent for an Action, apply the Action's Effect and
// later report an Outcome so the Agent can learn from it.
package rl

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Action is a scheduling decision for a low-risk patient.
type Action string

const (
	ActionImmediate Action = "immediate"
	ActionDelay15   Action = "delay_15"
	ActionDelay30   Action = "delay_30"
	ActionDelay60   Action = "delay_60"
	ActionDelay120  Action = "delay_120"
)

// Actions is the action space in tie-break order. When two actions share the
// best value the one listed first wins.
var Actions = []Action{ActionImmediate, ActionDelay15, ActionDelay30, ActionDelay60, ActionDelay120}

// Effect is what an action does to a queue entry.
type Effect struct {
	DelayMinutes  int
	PriorityBoost float64
}

func (a Action) Effect() Effect {
	switch a {
	case ActionImmediate:
		return Effect{DelayMinutes: 0, PriorityBoost: 10}
	case ActionDelay15:
		return Effect{DelayMinutes: 15, PriorityBoost: 2}
	case ActionDelay30:
		return Effect{DelayMinutes: 30, PriorityBoost: 0}
	case ActionDelay60:
		return Effect{DelayMinutes: 60, PriorityBoost: -3}
	case ActionDelay120:
		return Effect{DelayMinutes: 120, PriorityBoost: -8}
	}
	return Effect{}
}

func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Table maps a state key to per-action value estimates.
type Table map[string]map[string]float64

// Clone returns a deep copy.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for state, row := range t {
		r := make(map[string]float64, len(row))
		for a, v := range row {
			r[a] = v
		}
		out[state] = r
	}
	return out
}

// Config holds the learning hyperparameters.
type Config struct {
	LearningRate float64
	Discount     float64
	Epsilon      float64
	EpsilonDecay float64
	MinEpsilon   float64
}

func DefaultConfig() Config {
	return Config{
		LearningRate: 0.1,
		Discount:     0.95,
		Epsilon:      0.1,
		EpsilonDecay: 0.995,
		MinEpsilon:   0.01,
	}
}

// Option configures an Agent.
type Option func(*Agent)

// WithRand injects the exploration random source.
func WithRand(r *rand.Rand) Option {
	return func(a *Agent) {
		a.rng = r
	}
}

// WithSeed seeds a private random source.
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// Agent is an epsilon-greedy Q-learner. All methods are safe for concurrent
// use.
type Agent struct {
	mu      sync.Mutex
	cfg     Config
	epsilon float64
	table   Table
	rng     *rand.Rand
}

func NewAgent(cfg Config, opts ...Option) *Agent {
	a := &Agent{
		cfg:     cfg,
		epsilon: cfg.Epsilon,
		table:   make(Table),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return a
}

// row returns the action values for state, creating a zeroed row on first
// touch. Callers hold a.mu.
func (a *Agent) row(state string) map[string]float64 {
	r, ok := a.table[state]
	if !ok {
		r = make(map[string]float64, len(Actions))
		a.table[state] = r
	}
	for _, act := range Actions {
		if _, ok := r[string(act)]; !ok {
			r[string(act)] = 0
		}
	}
	return r
}

// Choose picks an action for state: a uniformly random one with probability
// epsilon, otherwise the best known.
func (a *Agent) Choose(state string) Action {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.row(state)
	if a.rng.Float64() < a.epsilon {
		return Actions[a.rng.Intn(len(Actions))]
	}
	return greedy(r)
}

// Best returns the greedy action for state without exploring.
func (a *Agent) Best(state string) Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return greedy(a.row(state))
}

func greedy(r map[string]float64) Action {
	best := Actions[0]
	bestVal := r[string(best)]
	for _, act := range Actions[1:] {
		if v := r[string(act)]; v > bestVal {
			best, bestVal = act, v
		}
	}
	return best
}

// Update applies one step of Q-learning and decays epsilon. It returns the
// new estimate for (state, action).
func (a *Agent) Update(state string, action Action, reward float64, next string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.row(state)
	maxNext := math.Inf(-1)
	for _, v := range a.row(next) {
		maxNext = math.Max(maxNext, v)
	}

	q := cur[string(action)]
	q += a.cfg.LearningRate * (reward + a.cfg.Discount*maxNext - q)
	cur[string(action)] = q

	a.epsilon = math.Max(a.cfg.MinEpsilon, a.epsilon*a.cfg.EpsilonDecay)
	return q
}

// Value returns the current estimate, defaulting to zero.
func (a *Agent) Value(state string, action Action) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.row(state)[string(action)]
}

func (a *Agent) Epsilon() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

// Snapshot returns a deep copy of the table.
func (a *Agent) Snapshot() Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table.Clone()
}

// Load replaces the table. Unknown actions are dropped and missing ones are
// filled with zero.
func (a *Agent) Load(t Table) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.table = make(Table, len(t))
	for state, row := range t {
		r := a.row(state)
		for _, act := range Actions {
			if v, ok := row[string(act)]; ok {
				r[string(act)] = v
			}
		}
	}
}

// Reset forgets everything learned and restores the initial epsilon.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = make(Table)
	a.epsilon = a.cfg.Epsilon
}

// Len is the number of states touched so far.
func (a *Agent) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.table)
}
