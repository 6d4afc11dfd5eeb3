package triage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/rl"
)

// DefaultSaveEvery is how many feedback records pass between Q-table saves.
const DefaultSaveEvery = 10

// FeedbackStats are the counters exposed for observability. Unmatched counts
// feedback that arrived with no pending decision to learn from.
type FeedbackStats struct {
	Total           int64   `json:"total"`
	Applied         int64   `json:"applied"`
	Unmatched       int64   `json:"unmatched"`
	Saves           int64   `json:"saves"`
	SaveFailures    int64   `json:"save_failures"`
	PendingBindings int     `json:"pending_bindings"`
	States          int     `json:"states"`
	Epsilon         float64 `json:"epsilon"`
}

// FeedbackStore records outcomes and turns them into Q-learning updates.
type FeedbackStore struct {
	repo      FeedbackRepository
	queue     *Queue
	agent     *rl.Agent
	bindings  *rl.Bindings
	persister *rl.Persister
	saveEvery int64
	now       func() time.Time
	logger    zerolog.Logger

	total     atomic.Int64
	applied   atomic.Int64
	unmatched atomic.Int64
}

// FeedbackOption configures a FeedbackStore.
type FeedbackOption func(*FeedbackStore)

// WithPersister enables periodic Q-table saves.
func WithPersister(p *rl.Persister, every int) FeedbackOption {
	return func(f *FeedbackStore) {
		f.persister = p
		if every > 0 {
			f.saveEvery = int64(every)
		}
	}
}

func WithFeedbackClock(now func() time.Time) FeedbackOption {
	return func(f *FeedbackStore) {
		f.now = now
	}
}

func WithFeedbackLogger(logger zerolog.Logger) FeedbackOption {
	return func(f *FeedbackStore) {
		f.logger = logger
	}
}

func NewFeedbackStore(repo FeedbackRepository, queue *Queue, agent *rl.Agent, bindings *rl.Bindings, opts ...FeedbackOption) *FeedbackStore {
	f := &FeedbackStore{
		repo:      repo,
		queue:     queue,
		agent:     agent,
		bindings:  bindings,
		saveEvery: DefaultSaveEvery,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Record appends the outcome to the audit log and, when a decision is still
// bound to the patient, updates the Q-table with it. Feedback for unknown,
// served or expired patients is kept but not learned from.
func (f *FeedbackStore) Record(ctx context.Context, patientID uuid.UUID, o Outcome) (*FeedbackRecord, error) {
	o, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	now := f.now()
	bind, matched := f.bindings.Take(patientID.String(), now)

	rec := &FeedbackRecord{
		ID:                  uuid.New(),
		PatientID:           patientID,
		ActualWaitMinutes:   o.ActualWaitMinutes,
		Satisfaction:        o.Satisfaction,
		ResourceUtilization: o.ResourceUtilization,
		Applied:             matched,
		RecordedAt:          now,
	}
	if err := f.repo.Append(ctx, rec); err != nil {
		if matched {
			f.queue.Restore(patientID, bind)
		}
		return nil, err
	}

	if matched {
		next := f.queue.StateKey(bind.Risk, bind.Confidence, now)
		reward := rl.Reward(bind.Action, rl.Outcome{
			WaitMinutes:  o.ActualWaitMinutes,
			Satisfaction: o.Satisfaction,
			Utilization:  o.ResourceUtilization,
		})
		q := f.agent.Update(bind.State, bind.Action, reward, next)
		f.applied.Add(1)
		f.logger.Debug().
			Str("patient_id", patientID.String()).
			Str("state", bind.State).
			Str("action", string(bind.Action)).
			Float64("reward", reward).
			Float64("q", q).
			Msg("q-table updated")
	} else {
		f.unmatched.Add(1)
		f.logger.Info().
			Str("patient_id", patientID.String()).
			Msg("feedback has no pending decision, recorded without learning")
	}

	if n := f.total.Add(1); f.persister != nil && n%f.saveEvery == 0 {
		f.persister.Submit(f.agent.Snapshot())
	}
	return rec, nil
}

func (f *FeedbackStore) List(ctx context.Context, limit, offset int) ([]*FeedbackRecord, int, error) {
	return f.repo.List(ctx, limit, offset)
}

func (f *FeedbackStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FeedbackRecord, int, error) {
	return f.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (f *FeedbackStore) Stats() FeedbackStats {
	s := FeedbackStats{
		Total:           f.total.Load(),
		Applied:         f.applied.Load(),
		Unmatched:       f.unmatched.Load(),
		PendingBindings: f.bindings.Len(),
		States:          f.agent.Len(),
		Epsilon:         f.agent.Epsilon(),
	}
	if f.persister != nil {
		s.Saves = f.persister.Saves()
		s.SaveFailures = f.persister.Failures()
	}
	return s
}
