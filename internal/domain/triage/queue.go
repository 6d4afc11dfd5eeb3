package triage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/rl"
)

// Queue owns every admitted patient. All operations run under a single
// mutex, so positions, pops and RL decisions never race with each other.
type Queue struct {
	mu      sync.Mutex
	entries []*QueueEntry
	seq     int64

	scorer   Scorer
	agent    *rl.Agent
	bindings *rl.Bindings
	now      func() time.Time
	logger   zerolog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

func WithQueueLogger(logger zerolog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

func NewQueue(agent *rl.Agent, bindings *rl.Bindings, opts ...QueueOption) *Queue {
	q := &Queue{
		agent:    agent,
		bindings: bindings,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Admit adds a patient and returns a copy of its entry as ranked right
// after admission. Low-risk entries get their RL action here, once.
func (q *Queue) Admit(a Assessment) QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	e := &QueueEntry{
		ID:         uuid.New(),
		Assessment: a,
		seq:        q.seq,
	}
	q.seq++
	q.entries = append(q.entries, e)

	if a.RiskLevel == RiskLow {
		q.schedule(e, now)
	}
	q.reorder(now)

	q.logger.Debug().
		Str("patient_id", e.ID.String()).
		Str("risk_level", a.RiskLevel.String()).
		Int("queue_position", e.QueuePosition).
		Msg("patient admitted")
	return *e
}

// Snapshot ranks every entry as of now and returns copies in queue order.
func (q *Queue) Snapshot(now time.Time) []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reorder(now)
	out := make([]QueueEntry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// PopNext removes and returns the highest ranked entry.
func (q *Queue) PopNext(now time.Time) (QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return QueueEntry{}, ErrEmptyQueue
	}
	q.reorder(now)

	head := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	q.bindings.Evict(head.ID.String())
	q.reorder(now)

	return *head, nil
}

// Clear empties the queue and returns how many entries it held.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	ids := make([]string, 0, n)
	for _, e := range q.entries {
		ids = append(ids, e.ID.String())
	}
	q.bindings.Evict(ids...)
	q.entries = nil
	return n
}

// Reschedule re-selects the RL action of every low-risk entry and returns
// the number of entries per class.
func (q *Queue) Reschedule(now time.Time) map[RiskLevel]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[RiskLevel]int, len(RiskLevels))
	for _, lvl := range RiskLevels {
		counts[lvl] = 0
	}
	for _, e := range q.entries {
		counts[e.Assessment.RiskLevel]++
		if e.Assessment.RiskLevel == RiskLow {
			q.schedule(e, now)
		}
	}
	q.reorder(now)
	return counts
}

// Restore hands back a binding taken by feedback that could not be stored.
// It is dropped when the patient has left the queue or already holds a newer
// decision.
func (q *Queue) Restore(id uuid.UUID, bind rl.Binding) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := id.String()
	if _, ok := q.bindings.Peek(key); ok {
		return false
	}
	for _, e := range q.entries {
		if e.ID == id {
			q.bindings.Put(key, bind)
			return true
		}
	}
	return false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// StateKey builds the RL state for a patient with the given risk and
// confidence under the current queue conditions.
func (q *Queue) StateKey(risk string, confidence float64, now time.Time) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state(risk, confidence, now).Key()
}

func (q *Queue) state(risk string, confidence float64, now time.Time) rl.State {
	high := 0
	for _, e := range q.entries {
		if e.Assessment.RiskLevel == RiskHigh {
			high++
		}
	}
	return rl.State{
		Risk:          risk,
		Confidence:    confidence,
		QueueLength:   len(q.entries),
		HighRiskCount: high,
		Hour:          now.Hour(),
	}
}

// schedule picks an RL action for e, applies its effect and binds the
// decision to the patient. Callers hold q.mu.
func (q *Queue) schedule(e *QueueEntry, now time.Time) {
	risk := strings.ToLower(e.Assessment.RiskLevel.String())
	key := q.state(risk, e.Assessment.Confidence, now).Key()
	action := q.agent.Choose(key)
	effect := action.Effect()

	name := string(action)
	e.RLState = &key
	e.RLAction = &name
	e.RLAdjustment = effect.PriorityBoost
	e.delay = effect.DelayMinutes

	q.bindings.Put(e.ID.String(), rl.Binding{
		State:      key,
		Action:     action,
		Risk:       risk,
		Confidence: e.Assessment.Confidence,
		AdmittedAt: now,
	})
}

// reorder rescores, sorts and renumbers every entry. Callers hold q.mu.
func (q *Queue) reorder(now time.Time) {
	for _, e := range q.entries {
		e.PriorityScore = q.scorer.Score(e.Assessment, now)
		if e.Assessment.RiskLevel == RiskLow && e.RLAction == nil {
			q.schedule(e, now)
		}
	}

	sort.SliceStable(q.entries, func(i, j int) bool {
		a, b := q.entries[i], q.entries[j]
		if pa, pb := a.FinalPriority(), b.FinalPriority(); pa != pb {
			return pa > pb
		}
		if !a.Assessment.CreatedAt.Equal(b.Assessment.CreatedAt) {
			return a.Assessment.CreatedAt.Before(b.Assessment.CreatedAt)
		}
		return a.seq < b.seq
	})

	for i, e := range q.entries {
		e.QueuePosition = i + 1
		e.EstimatedWaitMinutes = estimateWait(e, e.QueuePosition)
	}
}

func minutesPerPatient(level RiskLevel) int {
	switch level {
	case RiskHigh:
		return 15
	case RiskMedium:
		return 20
	case RiskLow:
		return 25
	}
	return 20
}

// estimateWait counts the patients ahead at the class rate. High risk is
// shaved by ten minutes; low risk carries its RL delay.
func estimateWait(e *QueueEntry, position int) int {
	ahead := position - 1
	if ahead < 0 {
		ahead = 0
	}
	wait := ahead * minutesPerPatient(e.Assessment.RiskLevel)
	switch e.Assessment.RiskLevel {
	case RiskHigh:
		wait -= 10
		if wait < 0 {
			wait = 0
		}
	case RiskLow:
		wait += e.delay
	}
	return wait
}
