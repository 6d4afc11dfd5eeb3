package rl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgConn is the subset of *pgxpool.Pool the store needs.
type pgConn interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore keeps the table in the rl_qtable table, one row per
// (state, action).
type PGStore struct {
	conn pgConn
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{conn: pool}
}

func (s *PGStore) Load(ctx context.Context) (Table, error) {
	rows, err := s.conn.Query(ctx, `SELECT state, action, value FROM rl_qtable`)
	if err != nil {
		return nil, fmt.Errorf("query q-table: %w", err)
	}
	defer rows.Close()

	t := make(Table)
	for rows.Next() {
		var state, action string
		var value float64
		if err := rows.Scan(&state, &action, &value); err != nil {
			return nil, fmt.Errorf("scan q-table row: %w", err)
		}
		if t[state] == nil {
			t[state] = make(map[string]float64)
		}
		t[state][action] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(t) == 0 {
		return nil, ErrNoTable
	}
	return t, nil
}

// Save replaces the stored table inside a single transaction.
func (s *PGStore) Save(ctx context.Context, t Table) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin q-table save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rl_qtable`); err != nil {
		return fmt.Errorf("clear q-table: %w", err)
	}

	rows := make([][]interface{}, 0, len(t)*len(Actions))
	for state, row := range t {
		for action, value := range row {
			rows = append(rows, []interface{}{state, action, value})
		}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"rl_qtable"},
		[]string{"state", "action", "value"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy q-table rows: %w", err)
	}

	return tx.Commit(ctx)
}
