package triage

import (
	"context"

	"github.com/ehr/triage/internal/platform/reporting"
)

// maxReportFeedback caps the feedback rows in one export.
const maxReportFeedback = 5000

// ReportSource adapts the service to the reporting package.
type ReportSource struct {
	svc *Service
}

func NewReportSource(svc *Service) *ReportSource {
	return &ReportSource{svc: svc}
}

func (r *ReportSource) QueueRows(_ context.Context) []reporting.QueueRow {
	entries := r.svc.Snapshot()
	rows := make([]reporting.QueueRow, 0, len(entries))
	for _, e := range entries {
		action := ""
		if e.RLAction != nil {
			action = *e.RLAction
		}
		rows = append(rows, reporting.QueueRow{
			Position:      e.QueuePosition,
			PatientID:     e.ID.String(),
			RiskLevel:     e.Assessment.RiskLevel.String(),
			Confidence:    e.Assessment.Confidence,
			PriorityScore: e.PriorityScore,
			RLAction:      action,
			RLAdjustment:  e.RLAdjustment,
			WaitMinutes:   e.EstimatedWaitMinutes,
			AdmittedAt:    e.Assessment.CreatedAt,
		})
	}
	return rows
}

func (r *ReportSource) FeedbackRows(ctx context.Context) ([]reporting.FeedbackRow, error) {
	records, _, err := r.svc.ListFeedback(ctx, maxReportFeedback, 0)
	if err != nil {
		return nil, err
	}
	rows := make([]reporting.FeedbackRow, 0, len(records))
	for _, f := range records {
		rows = append(rows, reporting.FeedbackRow{
			PatientID:           f.PatientID.String(),
			ActualWaitMinutes:   f.ActualWaitMinutes,
			Satisfaction:        f.Satisfaction,
			ResourceUtilization: f.ResourceUtilization,
			Applied:             f.Applied,
			RecordedAt:          f.RecordedAt,
		})
	}
	return rows, nil
}

func (r *ReportSource) Metrics(_ context.Context) []reporting.Metric {
	entries := r.svc.Snapshot()
	counts := map[RiskLevel]int{}
	var totalWait int
	for _, e := range entries {
		counts[e.Assessment.RiskLevel]++
		totalWait += e.EstimatedWaitMinutes
	}
	avgWait := 0.0
	if len(entries) > 0 {
		avgWait = float64(totalWait) / float64(len(entries))
	}
	stats := r.svc.FeedbackStats()
	return []reporting.Metric{
		{Name: "queue_length", Value: len(entries)},
		{Name: "high_risk", Value: counts[RiskHigh]},
		{Name: "medium_risk", Value: counts[RiskMedium]},
		{Name: "low_risk", Value: counts[RiskLow]},
		{Name: "avg_estimated_wait_minutes", Value: avgWait},
		{Name: "feedback_total", Value: stats.Total},
		{Name: "feedback_applied", Value: stats.Applied},
		{Name: "feedback_unmatched", Value: stats.Unmatched},
		{Name: "qtable_states", Value: stats.States},
		{Name: "epsilon", Value: stats.Epsilon},
	}
}
