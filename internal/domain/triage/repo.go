package triage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// FeedbackRepository is the append-only audit log of outcome feedback.
type FeedbackRepository interface {
	Append(ctx context.Context, r *FeedbackRecord) error
	List(ctx context.Context, limit, offset int) ([]*FeedbackRecord, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FeedbackRecord, int, error)
}

// MemoryFeedbackRepo keeps feedback in process memory. Records are lost on
// restart.
type MemoryFeedbackRepo struct {
	mu      sync.RWMutex
	records []*FeedbackRecord
}

func NewMemoryFeedbackRepo() *MemoryFeedbackRepo {
	return &MemoryFeedbackRepo{}
}

func (m *MemoryFeedbackRepo) Append(_ context.Context, r *FeedbackRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.mu.Lock()
	m.records = append(m.records, &cp)
	m.mu.Unlock()
	return nil
}

// List returns the newest records first.
func (m *MemoryFeedbackRepo) List(_ context.Context, limit, offset int) ([]*FeedbackRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.records, nil, limit, offset)
}

func (m *MemoryFeedbackRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*FeedbackRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.records, func(r *FeedbackRecord) bool { return r.PatientID == patientID }, limit, offset)
}

func page(all []*FeedbackRecord, keep func(*FeedbackRecord) bool, limit, offset int) ([]*FeedbackRecord, int, error) {
	var matched []*FeedbackRecord
	for _, r := range all {
		if keep == nil || keep(r) {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*FeedbackRecord{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
