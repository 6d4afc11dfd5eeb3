package triage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type feedbackRepoPG struct{ conn queryable }

func NewFeedbackRepoPG(pool *pgxpool.Pool) FeedbackRepository { return &feedbackRepoPG{conn: pool} }

const feedbackCols = `id, patient_id, actual_wait_minutes, satisfaction, resource_utilization, applied, recorded_at`

func (r *feedbackRepoPG) scanFeedback(row pgx.Row) (*FeedbackRecord, error) {
	var f FeedbackRecord
	err := row.Scan(&f.ID, &f.PatientID, &f.ActualWaitMinutes, &f.Satisfaction,
		&f.ResourceUtilization, &f.Applied, &f.RecordedAt)
	return &f, err
}

func (r *feedbackRepoPG) Append(ctx context.Context, f *FeedbackRecord) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO feedback_record (id, patient_id, actual_wait_minutes, satisfaction,
			resource_utilization, applied, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		f.ID, f.PatientID, f.ActualWaitMinutes, f.Satisfaction,
		f.ResourceUtilization, f.Applied, f.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *feedbackRepoPG) List(ctx context.Context, limit, offset int) ([]*FeedbackRecord, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM feedback_record`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn.Query(ctx, `SELECT `+feedbackCols+` FROM feedback_record
		ORDER BY recorded_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *feedbackRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FeedbackRecord, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM feedback_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn.Query(ctx, `SELECT `+feedbackCols+` FROM feedback_record WHERE patient_id = $1
		ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *feedbackRepoPG) collect(rows pgx.Rows, total int) ([]*FeedbackRecord, int, error) {
	items := []*FeedbackRecord{}
	for rows.Next() {
		f, err := r.scanFeedback(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}
