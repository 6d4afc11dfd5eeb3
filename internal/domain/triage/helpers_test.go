package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ehr/triage/internal/platform/events"
	"github.com/ehr/triage/internal/platform/rl"
)

// t0 falls in the morning bucket.
var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func normalVitals() VitalSigns {
	return VitalSigns{
		HeartRate:              80,
		RespiratoryRate:        16,
		BodyTemperature:        37,
		OxygenSaturation:       98,
		SystolicBloodPressure:  120,
		DiastolicBloodPressure: 80,
		Age:                    40,
		Gender:                 1,
		Weight:                 70,
		Height:                 1.75,
		DerivedHRV:             45,
		DerivedPulsePressure:   40,
		DerivedBMI:             22.9,
		DerivedMAP:             93.3,
	}
}

func greedyAgent() *rl.Agent {
	cfg := rl.DefaultConfig()
	cfg.Epsilon = 0
	cfg.MinEpsilon = 0
	return rl.NewAgent(cfg, rl.WithSeed(1))
}

// fixture wires a queue and feedback store around a greedy agent and a
// fake clock.
type fixture struct {
	clock    *fakeClock
	agent    *rl.Agent
	bindings *rl.Bindings
	queue    *Queue
	repo     *MemoryFeedbackRepo
	feedback *FeedbackStore
}

func newFixture(opts ...FeedbackOption) *fixture {
	f := &fixture{
		clock:    newFakeClock(),
		agent:    greedyAgent(),
		bindings: rl.NewBindings(6 * time.Hour),
		repo:     NewMemoryFeedbackRepo(),
	}
	f.queue = NewQueue(f.agent, f.bindings, WithClock(f.clock.Now))
	opts = append([]FeedbackOption{WithFeedbackClock(f.clock.Now)}, opts...)
	f.feedback = NewFeedbackStore(f.repo, f.queue, f.agent, f.bindings, opts...)
	return f
}

func (f *fixture) admit(level RiskLevel, confidence float64, v VitalSigns) QueueEntry {
	return f.queue.Admit(NewAssessment(level, confidence, v, f.clock.Now()))
}

// stubClassifier returns a fixed verdict and counts calls.
type stubClassifier struct {
	mu         sync.Mutex
	level      RiskLevel
	confidence float64
	err        error
	calls      int
}

func (s *stubClassifier) Classify(_ context.Context, _ VitalSigns) (RiskLevel, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.level, s.confidence, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type failingRepo struct{ MemoryFeedbackRepo }

func (r *failingRepo) Append(context.Context, *FeedbackRecord) error {
	return errors.New("connection refused")
}

// hookRepo runs before on every append and then fails, standing in for a
// slow database write that loses a race with the queue.
type hookRepo struct {
	MemoryFeedbackRepo
	before func()
}

func (r *hookRepo) Append(context.Context, *FeedbackRecord) error {
	if r.before != nil {
		r.before()
	}
	return errors.New("connection refused")
}

type memQTableStore struct {
	mu    sync.Mutex
	saves []rl.Table
}

func (m *memQTableStore) Load(context.Context) (rl.Table, error) { return nil, rl.ErrNoTable }

func (m *memQTableStore) Save(_ context.Context, t rl.Table) error {
	m.mu.Lock()
	m.saves = append(m.saves, t)
	m.mu.Unlock()
	return nil
}

func (m *memQTableStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}
