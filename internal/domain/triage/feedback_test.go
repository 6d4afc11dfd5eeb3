package triage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/rl"
)

func TestFeedback_UpdatesBoundDecision(t *testing.T) {
	f := newFixture()
	e := f.admit(RiskLow, 0.85, normalVitals())
	f.clock.Advance(20 * time.Minute)

	rec, err := f.feedback.Record(context.Background(), e.ID, Outcome{
		ActualWaitMinutes:   10,
		Satisfaction:        0.8,
		ResourceUtilization: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Applied {
		t.Error("expected feedback to be applied")
	}
	if !rec.RecordedAt.Equal(t0.Add(20 * time.Minute)) {
		t.Errorf("expected recorded_at from the clock, got %s", rec.RecordedAt)
	}

	// reward = 8 + 2.5; q = 0.1 * (10.5 + 0.95*0)
	got := f.agent.Value("low_8_1_0_morning", rl.ActionImmediate)
	if math.Abs(got-1.05) > 1e-9 {
		t.Errorf("expected q 1.05, got %g", got)
	}
	if f.bindings.Len() != 0 {
		t.Error("expected the binding to be consumed")
	}

	stats := f.feedback.Stats()
	if stats.Total != 1 || stats.Applied != 1 || stats.Unmatched != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFeedback_SecondReportIsUnmatched(t *testing.T) {
	f := newFixture()
	e := f.admit(RiskLow, 0.85, normalVitals())
	o := Outcome{ActualWaitMinutes: 5, Satisfaction: 0.9, ResourceUtilization: 0.5}

	if _, err := f.feedback.Record(context.Background(), e.ID, o); err != nil {
		t.Fatal(err)
	}
	before := f.agent.Snapshot()

	rec, err := f.feedback.Record(context.Background(), e.ID, o)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Applied {
		t.Error("expected duplicate feedback not to be applied")
	}
	after := f.agent.Snapshot()
	if before["low_8_1_0_morning"][string(rl.ActionImmediate)] != after["low_8_1_0_morning"][string(rl.ActionImmediate)] {
		t.Error("duplicate feedback must not change the table")
	}
	if stats := f.feedback.Stats(); stats.Total != 2 || stats.Unmatched != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFeedback_UnknownPatient(t *testing.T) {
	f := newFixture()

	rec, err := f.feedback.Record(context.Background(), uuid.New(), Outcome{ActualWaitMinutes: 30, Satisfaction: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Applied {
		t.Error("expected unknown patient feedback to be recorded but not applied")
	}
	if f.agent.Len() != 0 {
		t.Errorf("expected no learning, got %d states", f.agent.Len())
	}

	items, total, _ := f.feedback.List(context.Background(), 10, 0)
	if total != 1 || len(items) != 1 {
		t.Errorf("expected the record to be kept, got %d", total)
	}
}

func TestFeedback_AfterServeIsUnmatched(t *testing.T) {
	f := newFixture()
	e := f.admit(RiskLow, 0.85, normalVitals())
	if _, err := f.queue.PopNext(t0); err != nil {
		t.Fatal(err)
	}

	rec, err := f.feedback.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: 5, Satisfaction: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Applied {
		t.Error("expected feedback for a served patient not to be applied")
	}
}

func TestFeedback_ExpiredBinding(t *testing.T) {
	f := newFixture()
	e := f.admit(RiskLow, 0.85, normalVitals())
	f.clock.Advance(7 * time.Hour)

	rec, err := f.feedback.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: 5, Satisfaction: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Applied {
		t.Error("expected feedback past the binding ttl not to be applied")
	}
}

func TestFeedback_NonLowRiskIsUnmatched(t *testing.T) {
	f := newFixture()
	e := f.admit(RiskHigh, 0.9, normalVitals())

	rec, err := f.feedback.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: 5, Satisfaction: 1})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Applied {
		t.Error("high-risk patients carry no decision to learn from")
	}
}

func TestFeedback_InvalidOutcome(t *testing.T) {
	f := newFixture()
	e := f.admit(RiskLow, 0.85, normalVitals())

	_, err := f.feedback.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: -1, Satisfaction: 0.5})
	if !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
	if f.bindings.Len() != 1 {
		t.Error("rejected feedback must not consume the binding")
	}
	if stats := f.feedback.Stats(); stats.Total != 0 {
		t.Errorf("expected nothing counted, got %+v", stats)
	}
}

func TestFeedback_ClampsScores(t *testing.T) {
	f := newFixture()

	rec, err := f.feedback.Record(context.Background(), uuid.New(), Outcome{ActualWaitMinutes: 0, Satisfaction: 1.4, ResourceUtilization: -0.2})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Satisfaction != 1 || rec.ResourceUtilization != 0 {
		t.Errorf("expected clamped scores, got %g and %g", rec.Satisfaction, rec.ResourceUtilization)
	}
}

func TestFeedback_RepoFailureKeepsBinding(t *testing.T) {
	clock := newFakeClock()
	agent := greedyAgent()
	bindings := rl.NewBindings(time.Hour)
	queue := NewQueue(agent, bindings, WithClock(clock.Now))
	store := NewFeedbackStore(&failingRepo{}, queue, agent, bindings, WithFeedbackClock(clock.Now))
	e := queue.Admit(NewAssessment(RiskLow, 0.85, normalVitals(), t0))

	if _, err := store.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: 5, Satisfaction: 1}); err == nil {
		t.Fatal("expected repository error")
	}
	if _, ok := bindings.Peek(e.ID.String()); !ok {
		t.Error("expected the binding to be restored after a failed append")
	}
	if agent.Len() != 1 {
		t.Errorf("expected no update beyond the admission state, got %d states", agent.Len())
	}
}

func TestFeedback_FailedAppendDoesNotReviveServedPatient(t *testing.T) {
	clock := newFakeClock()
	agent := greedyAgent()
	bindings := rl.NewBindings(time.Hour)
	queue := NewQueue(agent, bindings, WithClock(clock.Now))
	repo := &hookRepo{}
	store := NewFeedbackStore(repo, queue, agent, bindings, WithFeedbackClock(clock.Now))
	e := queue.Admit(NewAssessment(RiskLow, 0.85, normalVitals(), t0))
	repo.before = func() {
		if _, err := queue.PopNext(clock.Now()); err != nil {
			t.Errorf("pop: %v", err)
		}
	}

	if _, err := store.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: 5, Satisfaction: 1}); err == nil {
		t.Fatal("expected repository error")
	}
	if _, ok := bindings.Peek(e.ID.String()); ok {
		t.Error("binding came back for a patient who already left the queue")
	}
	if bindings.Len() != 0 {
		t.Errorf("expected no pending bindings, got %d", bindings.Len())
	}
}

func TestFeedback_FailedAppendKeepsNewerDecision(t *testing.T) {
	clock := newFakeClock()
	agent := greedyAgent()
	bindings := rl.NewBindings(time.Hour)
	queue := NewQueue(agent, bindings, WithClock(clock.Now))
	repo := &hookRepo{}
	store := NewFeedbackStore(repo, queue, agent, bindings, WithFeedbackClock(clock.Now))
	e := queue.Admit(NewAssessment(RiskLow, 0.85, normalVitals(), t0))
	old, _ := bindings.Peek(e.ID.String())
	repo.before = func() {
		clock.Advance(4 * time.Hour)
		queue.Reschedule(clock.Now())
	}

	if _, err := store.Record(context.Background(), e.ID, Outcome{ActualWaitMinutes: 5, Satisfaction: 1}); err == nil {
		t.Fatal("expected repository error")
	}
	got, ok := bindings.Peek(e.ID.String())
	if !ok {
		t.Fatal("expected the rescheduled binding to remain")
	}
	if got.State == old.State {
		t.Errorf("stale binding %q replaced the rescheduled one", old.State)
	}
}

func TestFeedback_PeriodicSave(t *testing.T) {
	qstore := &memQTableStore{}
	p := rl.NewPersister(qstore, zerolog.Nop())
	f := newFixture(WithPersister(p, 3))

	for i := 0; i < 7; i++ {
		if _, err := f.feedback.Record(context.Background(), uuid.New(), Outcome{ActualWaitMinutes: 1, Satisfaction: 0.5}); err != nil {
			t.Fatal(err)
		}
	}
	// Saves were submitted after the 3rd and 6th record; unstarted, they
	// coalesce into the single pending slot.
	p.Stop()
	if qstore.count() != 1 {
		t.Errorf("expected one coalesced save, got %d", qstore.count())
	}
	if stats := f.feedback.Stats(); stats.Saves != 1 {
		t.Errorf("expected saves counter 1, got %d", stats.Saves)
	}
}

func TestFeedback_ListByPatient(t *testing.T) {
	f := newFixture()
	a, b := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b, a} {
		f.clock.Advance(time.Minute)
		if _, err := f.feedback.Record(context.Background(), id, Outcome{Satisfaction: 0.5}); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := f.feedback.ListByPatient(context.Background(), a, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 records for patient, got %d", total)
	}
	if !items[0].RecordedAt.After(items[1].RecordedAt) {
		t.Error("expected newest first")
	}
}
