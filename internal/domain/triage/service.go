package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/events"
	"github.com/ehr/triage/internal/platform/rl"
)

// Classifier maps a set of vitals to a risk level and a confidence in [0,1].
type Classifier interface {
	Classify(ctx context.Context, v VitalSigns) (RiskLevel, float64, error)
}

type Service struct {
	classifier Classifier
	queue      *Queue
	feedback   *FeedbackStore
	agent      *rl.Agent
	publisher  events.Publisher
	now        func() time.Time
	logger     zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(classifier Classifier, queue *Queue, feedback *FeedbackStore, agent *rl.Agent, opts ...ServiceOption) *Service {
	s := &Service{
		classifier: classifier,
		queue:      queue,
		feedback:   feedback,
		agent:      agent,
		publisher:  events.NopPublisher{},
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Queue --

// Admit validates and classifies the vitals, then enqueues the patient.
// Nothing is enqueued when validation or classification fails.
func (s *Service) Admit(ctx context.Context, v VitalSigns) (QueueEntry, error) {
	if err := v.Validate(); err != nil {
		return QueueEntry{}, err
	}
	level, confidence, err := s.classifier.Classify(ctx, v)
	if err != nil {
		if !errors.Is(err, ErrClassifierUnavailable) && !errors.Is(err, ErrUnknownRiskLevel) {
			err = fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
		}
		return QueueEntry{}, err
	}
	if !level.Valid() {
		return QueueEntry{}, fmt.Errorf("%w: %d", ErrUnknownRiskLevel, int(level))
	}

	entry := s.queue.Admit(NewAssessment(level, confidence, v, s.now()))

	s.logger.Info().
		Str("patient_id", entry.ID.String()).
		Str("risk_level", level.String()).
		Float64("confidence", entry.Assessment.Confidence).
		Int("queue_position", entry.QueuePosition).
		Msg("patient triaged")
	s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeAdmitted,
		PatientID: entry.ID.String(),
		RiskLevel: level.String(),
		At:        entry.Assessment.CreatedAt,
		Data: map[string]interface{}{
			"confidence":     entry.Assessment.Confidence,
			"priority_score": entry.PriorityScore,
			"queue_position": entry.QueuePosition,
		},
	})
	return entry, nil
}

func (s *Service) Snapshot() []QueueEntry {
	return s.queue.Snapshot(s.now())
}

// Next removes the highest ranked patient.
func (s *Service) Next(ctx context.Context) (QueueEntry, error) {
	now := s.now()
	entry, err := s.queue.PopNext(now)
	if err != nil {
		return QueueEntry{}, err
	}
	waited := now.Sub(entry.Assessment.CreatedAt).Minutes()
	s.logger.Info().
		Str("patient_id", entry.ID.String()).
		Str("risk_level", entry.Assessment.RiskLevel.String()).
		Float64("waited_minutes", waited).
		Msg("patient served")
	s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeServed,
		PatientID: entry.ID.String(),
		RiskLevel: entry.Assessment.RiskLevel.String(),
		At:        now,
		Data: map[string]interface{}{
			"waited_minutes": waited,
			"priority_score": entry.PriorityScore,
		},
	})
	return entry, nil
}

// Reschedule re-runs the RL decision for every low-risk patient.
func (s *Service) Reschedule(_ context.Context) map[RiskLevel]int {
	counts := s.queue.Reschedule(s.now())
	s.logger.Info().
		Int("high", counts[RiskHigh]).
		Int("medium", counts[RiskMedium]).
		Int("low", counts[RiskLow]).
		Msg("queue rescheduled")
	return counts
}

func (s *Service) Clear(ctx context.Context) int {
	n := s.queue.Clear()
	s.logger.Warn().Int("removed", n).Msg("queue cleared")
	s.publisher.Publish(ctx, events.Event{
		Type: events.TypeCleared,
		At:   s.now(),
		Data: map[string]interface{}{"removed": n},
	})
	return n
}

// -- Feedback --

func (s *Service) RecordFeedback(ctx context.Context, patientID uuid.UUID, o Outcome) (*FeedbackRecord, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidOutcome)
	}
	rec, err := s.feedback.Record(ctx, patientID, o)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeFeedback,
		PatientID: patientID.String(),
		At:        rec.RecordedAt,
		Data: map[string]interface{}{
			"applied":             rec.Applied,
			"actual_wait_minutes": rec.ActualWaitMinutes,
			"satisfaction_score":  rec.Satisfaction,
		},
	})
	return rec, nil
}

func (s *Service) ListFeedback(ctx context.Context, limit, offset int) ([]*FeedbackRecord, int, error) {
	return s.feedback.List(ctx, limit, offset)
}

func (s *Service) ListFeedbackByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FeedbackRecord, int, error) {
	return s.feedback.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) FeedbackStats() FeedbackStats {
	return s.feedback.Stats()
}

// -- RL --

// QTable returns a copy of the learned action values.
func (s *Service) QTable() rl.Table {
	return s.agent.Snapshot()
}

func (s *Service) Epsilon() float64 {
	return s.agent.Epsilon()
}
